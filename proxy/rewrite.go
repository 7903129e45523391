package proxy

import (
	"net/url"
	"strings"
)

const (
	masterMarker = "#EXT-X-STREAM-INF"
	adMarker     = "stitched-ad"

	// emptyManifest is a valid playlist with no segments, returned instead
	// of ad content while the main path is still dirty.
	emptyManifest = "#EXTM3U\n#EXT-X-ENDLIST\n"
)

// manifestInfo is what one rewriting pass learned about a playlist.
type manifestInfo struct {
	isMaster   bool
	adDetected bool
}

// rewriteManifest walks a playlist line by line, flags the master and ad
// markers, and reroutes every nested-manifest URL through the local proxy.
// URL lines are resolved against the manifest's own URL first; segment URLs
// and tag lines pass through untouched.
func rewriteManifest(body string, manifestURL *url.URL, base, session string) (string, manifestInfo) {
	var info manifestInfo
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, masterMarker):
			info.isMaster = true
		case strings.Contains(line, adMarker):
			info.adDetected = true
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			if rewritten, ok := rewriteURLLine(line, manifestURL, base, session); ok {
				line = rewritten
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), info
}

func rewriteURLLine(line string, manifestURL *url.URL, base, session string) (string, bool) {
	ref, err := manifestURL.Parse(strings.TrimSpace(line))
	if err != nil {
		return "", false
	}
	if !looksLikeManifest(ref) {
		return "", false
	}
	return base + "/proxy?session=" + url.QueryEscape(session) + "&url=" + url.QueryEscape(ref.String()), true
}

// looksLikeManifest reports whether a URL points at a playlist rather than a
// media segment. Only playlists need to round-trip through the proxy again.
func looksLikeManifest(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// isManifestContent reports whether a response should be treated as a
// playlist based on its content type, falling back to the URL extension for
// edges that serve playlists as plain text.
func isManifestContent(contentType string, u *url.URL) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	return looksLikeManifest(u)
}
