package domain

import "testing"

func TestDetectPlatform(t *testing.T) {
	cases := []struct {
		url      string
		platform Platform
		found    bool
	}{
		{"https://www.tiktok.com/@user", PlatformTikTok, true},
		{"https://instagram.com/user", PlatformInstagram, true},
		{"https://instagr.am/user", PlatformInstagram, true},
		{"https://www.facebook.com/user", PlatformFacebook, true},
		{"https://fb.watch/xyz", PlatformFacebook, true},
		{"https://youtube.com/@user", PlatformYouTube, true},
		{"https://youtu.be/abc", PlatformYouTube, true},
		{"  HTTPS://WWW.TIKTOK.COM/@USER  ", PlatformTikTok, true},
		{"https://example.com/user", PlatformUnknown, false},
		{"", PlatformUnknown, false},
	}
	for _, tc := range cases {
		platform, found := DetectPlatform(tc.url)
		if platform != tc.platform || found != tc.found {
			t.Fatalf("DetectPlatform(%q) = (%s, %v), ожидали (%s, %v)", tc.url, platform, found, tc.platform, tc.found)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	if p, ok := ParsePlatform(" TikTok "); !ok || p != PlatformTikTok {
		t.Fatalf("ожидали tiktok, получили %s", p)
	}
	if _, ok := ParsePlatform("vk"); ok {
		t.Fatalf("неизвестная платформа не должна распознаваться")
	}
}

func TestKnownPlatformsCoversRegistry(t *testing.T) {
	platforms := KnownPlatforms()
	if len(platforms) != 4 {
		t.Fatalf("ожидали 4 платформы, получили %d", len(platforms))
	}
	for _, platform := range platforms {
		if platform == PlatformUnknown {
			t.Fatalf("unknown не должен попадать в реестр")
		}
	}
}
