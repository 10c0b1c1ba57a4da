package domain

import "strings"

// Platform — соцсеть отслеживаемого аккаунта.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformYouTube   Platform = "youtube"
	PlatformUnknown   Platform = "unknown"
)

// FallbackPlatform используется, когда платформу не удалось определить по URL.
const FallbackPlatform = PlatformTikTok

// platformHosts — единый реестр сопоставления URL → платформа.
// Добавление новой платформы — изменение только этой таблицы.
var platformHosts = []struct {
	platform Platform
	hosts    []string
}{
	{PlatformTikTok, []string{"tiktok.com"}},
	{PlatformInstagram, []string{"instagram.com", "instagr.am"}},
	{PlatformFacebook, []string{"facebook.com", "fb.com", "fb.watch"}},
	{PlatformYouTube, []string{"youtube.com", "youtu.be"}},
}

// KnownPlatforms возвращает платформы, для которых есть правило определения.
func KnownPlatforms() []Platform {
	platforms := make([]Platform, 0, len(platformHosts))
	for _, rule := range platformHosts {
		platforms = append(platforms, rule.platform)
	}
	return platforms
}

// DetectPlatform определяет платформу по подстрокам URL профиля.
// Второе значение false означает, что ни одно правило не совпало.
func DetectPlatform(profileURL string) (Platform, bool) {
	lower := strings.ToLower(strings.TrimSpace(profileURL))
	for _, rule := range platformHosts {
		for _, host := range rule.hosts {
			if strings.Contains(lower, host) {
				return rule.platform, true
			}
		}
	}
	return PlatformUnknown, false
}

// ParsePlatform приводит строку к известной платформе.
func ParsePlatform(raw string) (Platform, bool) {
	switch Platform(strings.ToLower(strings.TrimSpace(raw))) {
	case PlatformTikTok:
		return PlatformTikTok, true
	case PlatformInstagram:
		return PlatformInstagram, true
	case PlatformFacebook:
		return PlatformFacebook, true
	case PlatformYouTube:
		return PlatformYouTube, true
	}
	return PlatformUnknown, false
}
