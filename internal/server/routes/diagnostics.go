package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/metrics"
	"github.com/mkos/mirror-cache/internal/profile"
	"github.com/mkos/mirror-cache/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/status、/-/profiles 与 /-/metrics 诊断接口。
// 必须在 server.NewApp 之后调用，catch-all 路由会把 /-/ 前缀让给这里。
func RegisterDiagnosticsRoutes(app *fiber.App, cfg *config.Config, recorder *metrics.Recorder) {
	if app == nil || cfg == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(cfg))
	})

	app.Get("/-/profiles", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"default":  profile.DefaultKey(),
			"profiles": encodeProfiles(profile.List()),
		})
	})

	app.Get("/-/profiles/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		meta, ok := profile.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "profile_not_found"})
		}
		return c.JSON(encodeProfile(meta))
	})

	if recorder != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(recorder.Handler()))
	}
}

type statusPayload struct {
	Version           string   `json:"version"`
	Upstream          string   `json:"upstream"`
	StoragePath       string   `json:"storage_path"`
	Profile           string   `json:"profile"`
	CacheableSuffixes []string `json:"cacheable_suffixes"`
	CoalesceMisses    bool     `json:"coalesce_misses"`
	MaxRetries        int      `json:"max_retries"`
}

type profilePayload struct {
	Key               string   `json:"key"`
	Description       string   `json:"description"`
	PackageManager    string   `json:"package_manager"`
	CacheableSuffixes []string `json:"cacheable_suffixes"`
}

func encodeStatus(cfg *config.Config) statusPayload {
	return statusPayload{
		Version:           version.Full(),
		Upstream:          cfg.Upstream,
		StoragePath:       cfg.StoragePath,
		Profile:           cfg.ResolveProfile().Key,
		CacheableSuffixes: cfg.EffectiveSuffixes(),
		CoalesceMisses:    cfg.CoalesceMisses,
		MaxRetries:        cfg.MaxRetries,
	}
}

func encodeProfiles(profiles []profile.Profile) []profilePayload {
	if len(profiles) == 0 {
		return nil
	}
	result := make([]profilePayload, 0, len(profiles))
	for _, meta := range profiles {
		result = append(result, encodeProfile(meta))
	}
	return result
}

func encodeProfile(meta profile.Profile) profilePayload {
	return profilePayload{
		Key:               meta.Key,
		Description:       meta.Description,
		PackageManager:    meta.PackageManager,
		CacheableSuffixes: append([]string(nil), meta.CacheableSuffixes...),
	}
}
