package domain

import "strings"

// FileKind is the coarse classification of a file derived from its extension.
// Values include FileKindImage, FileKindVideo, FileKindDoc, FileKindOther, and
// FileKindMissing for records whose on-disk file no longer exists.
type FileKind string

const (
	FileKindImage   FileKind = "image"
	FileKindVideo   FileKind = "video"
	FileKindDoc     FileKind = "doc"
	FileKindOther   FileKind = "other"
	FileKindMissing FileKind = "missing"
)

// Fixed extension tables. Lookups are lowercase without the leading dot.
var (
	imageExts = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true,
		"webp": true, "bmp": true, "tif": true, "tiff": true,
	}

	videoExts = map[string]bool{
		"mp4": true, "mkv": true, "avi": true, "mov": true,
		"wmv": true, "webm": true, "flv": true, "m4v": true,
	}

	docExts = map[string]bool{
		"txt": true, "md": true, "pdf": true, "doc": true, "docx": true,
		"xls": true, "xlsx": true, "ppt": true, "pptx": true,
		"csv": true, "rtf": true, "odt": true,
	}
)

// NormalizeExt strips the leading dot and lowercases an extension.
// Parameters:
//   - ext: raw extension, with or without leading dot.
// Returns:
//   - string: normalized extension, possibly empty.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// KindForExt maps a file extension to its coarse FileKind.
// Parameters:
//   - ext: file extension, with or without leading dot, any case.
// Returns:
//   - FileKind: image/video/doc classification, FileKindOther when unknown.
func KindForExt(ext string) FileKind {
	e := NormalizeExt(ext)
	switch {
	case imageExts[e]:
		return FileKindImage
	case videoExts[e]:
		return FileKindVideo
	case docExts[e]:
		return FileKindDoc
	default:
		return FileKindOther
	}
}

// IsImageExt reports whether the extension belongs to the image-type set.
func IsImageExt(ext string) bool {
	return imageExts[NormalizeExt(ext)]
}

// IsAllowedExt reports whether a file with this extension is eligible for
// enqueueing. Files without any extension are eligible.
func IsAllowedExt(ext string) bool {
	e := NormalizeExt(ext)
	if e == "" {
		return true
	}
	return imageExts[e] || videoExts[e] || docExts[e]
}
