package googledrive

import (
	"regexp"
	"strings"
)

var (
	bareID        = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	folderPathID  = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	queryParamID  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	validFolderID = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)
)

// ExtractFolderID accepts a bare folder ID or a Drive sharing URL.
func ExtractFolderID(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if bareID.MatchString(s) {
		return s, true
	}
	if m := folderPathID.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := queryParamID.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// IsValidFolderID reports whether id looks like a Drive folder ID.
func IsValidFolderID(id string) bool {
	return validFolderID.MatchString(id)
}

// FolderLink is the visitor-facing gallery path for a folder.
func FolderLink(id string) string {
	return "/google-drive/" + id
}
