package domain

import "testing"

func TestMetricsClamp(t *testing.T) {
	m := Metrics{Followers: -10, Likes: 5, Views: -1}
	clamped := m.Clamp()
	if clamped.Followers != 0 || clamped.Views != 0 {
		t.Fatalf("отрицательные значения должны обнуляться: %+v", clamped)
	}
	if clamped.Likes != 5 {
		t.Fatalf("положительные значения должны сохраняться: %+v", clamped)
	}
}

func TestMetricsEqual(t *testing.T) {
	a := Metrics{Followers: 1, Views: 100}
	b := Metrics{Followers: 1, Views: 100}
	if !a.Equal(b) {
		t.Fatalf("одинаковые метрики должны быть равны")
	}
	b.Views = 101
	if a.Equal(b) {
		t.Fatalf("разные метрики не должны быть равны")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	if JobStatusPending.Terminal() || JobStatusRunning.Terminal() {
		t.Fatalf("pending и running не терминальные")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatalf("completed и failed терминальные")
	}
}

func TestPlatformCountersDone(t *testing.T) {
	if (PlatformCounters{Total: 5, Processed: 4}).Done() {
		t.Fatalf("счётчик с необработанными аккаунтами не завершён")
	}
	if !(PlatformCounters{Total: 5, Processed: 5}).Done() {
		t.Fatalf("счётчик с processed == total завершён")
	}
	if !(PlatformCounters{Total: 0, Processed: 0}).Done() {
		t.Fatalf("пустая платформа считается завершённой")
	}
}
