package raster

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/scratch"
)

// FromDataURLs persists caller-supplied pre-rendered page images into the
// scope, pairing images[i] with pages[i]. No fetch or render work happens in
// this mode. A malformed or missing data URL is a per-page failure.
func FromDataURLs(pages []int, images []string, scope *scratch.Scope) *Result {
	res := &Result{}
	seen := make(map[int]int)
	for i, page := range pages {
		if i >= len(images) {
			res.Failures = append(res.Failures, model.PageFailure{
				Page:   page,
				Reason: "no pre-rendered image supplied for this page",
			})
			continue
		}
		data, ext, err := decodeDataURL(images[i])
		if err != nil {
			res.Failures = append(res.Failures, model.PageFailure{Page: page, Reason: err.Error()})
			continue
		}
		name := strings.TrimSuffix(assetName(page, seen), ".png") + ext
		path, err := scope.WriteFile(name, data)
		if err != nil {
			res.Failures = append(res.Failures, model.PageFailure{Page: page, Reason: err.Error()})
			continue
		}
		res.Assets = append(res.Assets, model.PageAsset{Page: page, Name: name, Path: path})
	}
	return res
}

// decodeDataURL parses "data:image/png;base64,...." payloads and returns the
// raw bytes plus a file extension derived from the media type.
func decodeDataURL(s string) (data []byte, ext string, err error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("data url must be base64 encoded")
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	switch mediaType {
	case "image/png":
		ext = ".png"
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	default:
		return nil, "", fmt.Errorf("unsupported media type %q", mediaType)
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image payload")
	}
	return data, ext, nil
}
