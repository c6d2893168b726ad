package config_test

import (
	"testing"
	"time"

	"github.com/okian/storyline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
			convey.So(cfg.NewsProvider, convey.ShouldEqual, config.NewsProviderNewsAPI)
			convey.So(cfg.LLMProvider, convey.ShouldEqual, config.LLMProviderOpenAI)
			convey.So(cfg.PageSize, convey.ShouldEqual, 10)
			convey.So(cfg.TemporalBuckets, convey.ShouldEqual, 4)
			convey.So(cfg.SubclusterThreshold, convey.ShouldEqual, 5)
			convey.So(cfg.MinClusterSize, convey.ShouldEqual, 2)
			convey.So(cfg.CORSOrigins, convey.ShouldResemble, []string{"http://localhost:3000", "http://127.0.0.1:3000"})
			convey.So(cfg.CachePath, convey.ShouldBeEmpty)
		})

		convey.Convey("Then the duration helpers should convert units", func() {
			convey.So(cfg.SearchTimeout(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.PageTimeout(), convey.ShouldEqual, 20*time.Second)
			convey.So(cfg.RequestTimeout(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.JobTTL(), convey.ShouldEqual, time.Hour)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 7*24*time.Hour)
		})

		convey.Convey("When the gemini provider is selected", func() {
			cfg.LLMProvider = config.LLMProviderGemini
			cfg.OpenAIAPIKey = "sk-openai"
			cfg.GeminiAPIKey = "gm-key"

			convey.Convey("Then the gemini key should be used", func() {
				convey.So(cfg.LLMAPIKey(), convey.ShouldEqual, "gm-key")
			})
		})
	})
}
