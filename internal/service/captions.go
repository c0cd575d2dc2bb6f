package service

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/hypecasthq/hypecast/internal/config"
	"github.com/hypecasthq/hypecast/pkg/util"
)

// CaptionGenerator derives captions and hashtags for generated videos. The
// video pipeline leaves a script metadata file per avatar; when one is
// discoverable its hook becomes the caption, otherwise the platform's
// canned caption applies.
type CaptionGenerator struct {
	cfg        *config.PostingConfig
	scriptsDir string
}

// scriptMetadata is the slice of the collaborator's script file we care
// about.
type scriptMetadata struct {
	Avatar   string `json:"avatar"`
	Hook     string `json:"hook"`
	FoodItem string `json:"food_item"`
}

func NewCaptionGenerator(cfg *config.PostingConfig, scriptsDir string) *CaptionGenerator {
	return &CaptionGenerator{cfg: cfg, scriptsDir: scriptsDir}
}

// Caption returns the posting caption for an avatar on a platform.
func (g *CaptionGenerator) Caption(avatar, platform string) string {
	if avatar != "" {
		if hook := g.scriptHook(avatar); hook != "" {
			return hook
		}
	}

	if caption, ok := g.cfg.Captions[platform]; ok {
		return caption
	}
	return "Check this out!"
}

// Hashtags builds the tag list: the platform's required base tags plus 3-5
// extras sampled from its pool.
func (g *CaptionGenerator) Hashtags(platform string) []string {
	var tags []string
	for _, tag := range g.cfg.BaseHashtags[platform] {
		if normalized := util.NormalizeHashtag(tag); normalized != "" {
			tags = append(tags, normalized)
		}
	}

	pool := g.cfg.HashtagPools[platform]
	if len(pool) == 0 {
		return tags
	}

	count := 3 + rand.Intn(3)
	if count > len(pool) {
		count = len(pool)
	}

	for _, idx := range rand.Perm(len(pool))[:count] {
		if normalized := util.NormalizeHashtag(pool[idx]); normalized != "" {
			tags = append(tags, normalized)
		}
	}
	return tags
}

// scriptHook reads the avatar's script metadata file, returning "" when no
// usable file exists.
func (g *CaptionGenerator) scriptHook(avatar string) string {
	path := filepath.Join(g.scriptsDir, avatar+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	meta := scriptMetadata{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Hook)
}
