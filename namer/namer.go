// Package namer builds output filenames for resolved download links.
package namer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/phase7/Tokyo-Downloader/models"
)

// DefaultTemplate is the placeholder form of the default filename pattern,
// shown to the user before prompting for a custom one.
const DefaultTemplate = "{anime_name} - {type}{episode_number} [{uploader}]"

// Input carries the metadata needed to build one output filename.
type Input struct {
	Template        string
	AnimeName       string
	Category        models.Category
	EpisodeID       string
	Size            string
	Uploader        string
	UploadDate      string
	TotalInCategory int
	Extension       string
}

// Format builds the filename for one resolved link. An empty Template yields
// "<anime> - <category><paddedID> [<uploader>]<ext>"; otherwise the
// template's named placeholders are substituted and Extension appended.
// Unknown placeholders pass through unchanged. Colons are stripped from the
// anime name in both cases.
func Format(in Input) string {
	name := CleanAnimeName(in.AnimeName)
	id := PadEpisodeID(in.EpisodeID, in.TotalInCategory)
	if in.Template == "" {
		return fmt.Sprintf("%s - %s%s [%s]%s", name, in.Category, id, in.Uploader, in.Extension)
	}
	r := strings.NewReplacer(
		"{anime_name}", name,
		"{type}", string(in.Category),
		"{episode_number}", id,
		"{size}", in.Size,
		"{uploader}", in.Uploader,
		"{upload_date}", in.UploadDate,
	)
	return r.Replace(in.Template) + in.Extension
}

// PadEpisodeID left-pads a numeric episode id with zeros until it is as wide
// as the category's total entry count. Non-numeric ids pass through
// unchanged.
func PadEpisodeID(id string, totalInCategory int) string {
	if _, err := strconv.Atoi(id); err != nil {
		return id
	}
	width := len(strconv.Itoa(totalInCategory))
	if len(id) >= width {
		return id
	}
	return strings.Repeat("0", width-len(id)) + id
}

// CleanAnimeName strips colons, the one character the site embeds in titles
// that breaks common filesystems.
func CleanAnimeName(name string) string {
	return strings.ReplaceAll(name, ":", "")
}

// ExtensionGuess returns the trailing four characters of a download URL; the
// site's real links end in a dotted three-letter extension. Shorter strings
// pass through whole.
func ExtensionGuess(url string) string {
	if len(url) <= 4 {
		return url
	}
	return url[len(url)-4:]
}
