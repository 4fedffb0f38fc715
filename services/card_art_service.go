package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"card-battle-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// CardArtService hosts the cosmetic card image a client generates before a
// match. The returned URL is what players exchange over the ephemeral
// broadcast channel — the battle core never reads it.
type CardArtService struct{}

func NewCardArtService() *CardArtService {
	return &CardArtService{}
}

var allowedArtExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

// UploadCardArt handles POST /cards/art (multipart: image, playerAddress, displayName)
func (s *CardArtService) UploadCardArt(c *fiber.Ctx) error {
	player := c.FormValue("playerAddress")
	if player == "" {
		return c.Status(400).JSON(fiber.Map{"error": "playerAddress is required"})
	}

	file, err := c.FormFile("image")
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "image file is required"})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedArtExtensions[ext] {
		return c.Status(400).JSON(fiber.Map{"error": "unsupported image type"})
	}

	name := c.FormValue("displayName")
	if name == "" {
		name = player
	}
	key := fmt.Sprintf("cards/%s-%s%s", slug.Make(name), uuid.NewString()[:8], ext)

	publicURL, err := utils.UploadToR2(file, key)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to store card art"})
	}

	return c.JSON(fiber.Map{"url": publicURL, "key": key})
}
