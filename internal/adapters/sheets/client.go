package sheets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
)

// Колонки листа проекта: A=url, B=username, C=followers, D=likes,
// E=comments, F=videos, G=views, H=total_items_seen. Первая строка — шапка.
const (
	dataRange       = "A2:H"
	metricsColFirst = "C"
	metricsColLast  = "H"
)

// ErrProjectSheetMissing возвращается, если у проекта не настроена таблица.
var ErrProjectSheetMissing = errors.New("у проекта не задана таблица")

// Client читает и пишет строки аккаунтов в Google-таблице проекта.
// Таблица — редактируемый людьми источник: клиент никогда не меняет
// строки, кроме явно переданного URL.
type Client struct {
	svc *sheetsapi.Service
}

var _ domain.SheetClient = (*Client)(nil)

// NewClient создаёт клиент Google Sheets по JSON сервисного аккаунта.
func NewClient(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("создание клиента sheets: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewClientFromFile создаёт клиент по пути к файлу сервисного аккаунта.
func NewClientFromFile(ctx context.Context, credentialsFile string) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("создание клиента sheets: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ReadRow возвращает метрики строки с указанным URL. Второй результат false,
// если строки нет. Пустые и нечисловые ячейки читаются как ноль.
func (c *Client) ReadRow(ctx context.Context, project domain.Project, profileURL string) (domain.Metrics, bool, error) {
	rows, _, err := c.loadRows(ctx, project)
	if err != nil {
		return domain.Metrics{}, false, err
	}
	for _, row := range rows {
		if rowURL(row) != normalizeURL(profileURL) {
			continue
		}
		return rowMetrics(row), true, nil
	}
	return domain.Metrics{}, false, nil
}

// WriteRow записывает канонические метрики в строку аккаунта. Если строки с
// таким URL нет, она добавляется в конец листа.
func (c *Client) WriteRow(ctx context.Context, project domain.Project, profileURL string, m domain.Metrics) error {
	rows, sheetName, err := c.loadRows(ctx, project)
	if err != nil {
		return err
	}
	values := []interface{}{m.Followers, m.Likes, m.Comments, m.Videos, m.Views, m.TotalItemsSeen}

	for idx, row := range rows {
		if rowURL(row) != normalizeURL(profileURL) {
			continue
		}
		// Данные начинаются со второй строки листа.
		rowNum := idx + 2
		writeRange := fmt.Sprintf("%s!%s%d:%s%d", sheetName, metricsColFirst, rowNum, metricsColLast, rowNum)
		start := time.Now()
		_, err = c.svc.Spreadsheets.Values.Update(project.SpreadsheetID, writeRange, &sheetsapi.ValueRange{
			Values: [][]interface{}{values},
		}).ValueInputOption("RAW").Context(ctx).Do()
		metrics.ObserveNetworkRequest("sheets", "values_update", sheetName, start, err)
		if err != nil {
			return fmt.Errorf("обновление строки таблицы: %w", err)
		}
		return nil
	}

	appendValues := append([]interface{}{profileURL, ""}, values...)
	start := time.Now()
	_, err = c.svc.Spreadsheets.Values.Append(project.SpreadsheetID, fmt.Sprintf("%s!%s", sheetName, dataRange), &sheetsapi.ValueRange{
		Values: [][]interface{}{appendValues},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "values_append", sheetName, start, err)
	if err != nil {
		return fmt.Errorf("добавление строки таблицы: %w", err)
	}
	return nil
}

func (c *Client) loadRows(ctx context.Context, project domain.Project) ([][]interface{}, string, error) {
	if project.SpreadsheetID == "" {
		return nil, "", ErrProjectSheetMissing
	}
	sheetName := project.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	start := time.Now()
	resp, err := c.svc.Spreadsheets.Values.Get(project.SpreadsheetID, fmt.Sprintf("%s!%s", sheetName, dataRange)).Context(ctx).Do()
	metrics.ObserveNetworkRequest("sheets", "values_get", sheetName, start, err)
	if err != nil {
		return nil, "", fmt.Errorf("чтение таблицы: %w", err)
	}
	return resp.Values, sheetName, nil
}

func rowURL(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	url, _ := row[0].(string)
	return normalizeURL(url)
}

func rowMetrics(row []interface{}) domain.Metrics {
	return domain.Metrics{
		Followers:      cellInt(row, 2),
		Likes:          cellInt(row, 3),
		Comments:       cellInt(row, 4),
		Videos:         cellInt(row, 5),
		Views:          cellInt(row, 6),
		TotalItemsSeen: cellInt(row, 7),
	}.Clamp()
}

// cellInt лениво парсит ячейку: пустые и нечисловые значения читаются как ноль.
func cellInt(row []interface{}, idx int) int64 {
	if idx >= len(row) {
		return 0
	}
	switch v := row[idx].(type) {
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(v), " ", "")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		n, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int64(v)
	}
	return 0
}

func normalizeURL(raw string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), "/")
}
