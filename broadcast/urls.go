package broadcast

import "strings"

// Output artifacts live under a path namespaced by the broadcast id, so every
// URL is derivable from the id and the storage base alone.
const (
	vodPlaylist  = "output.m3u8"
	livePlaylist = "output-live.m3u8"
	thumbnail    = "thumbnail.jpeg"
)

// StreamPath is the storage prefix for one broadcast's artifacts.
func StreamPath(broadcastID string) string {
	return "streams/" + broadcastID
}

// SegmentPath is where the egress job writes the segmented recording playlist.
func SegmentPath(broadcastID string) string {
	return StreamPath(broadcastID) + "/" + vodPlaylist
}

// SnapshotPath is where the egress job writes periodic thumbnails.
func SnapshotPath(broadcastID string) string {
	return StreamPath(broadcastID) + "/" + thumbnail
}

// LiveURL is the public URL of the low-latency live playlist.
func LiveURL(storageBase, broadcastID string) string {
	return joinURL(storageBase, StreamPath(broadcastID)+"/"+livePlaylist)
}

// VODURL is the public URL of the recorded playlist.
func VODURL(storageBase, broadcastID string) string {
	return joinURL(storageBase, StreamPath(broadcastID)+"/"+vodPlaylist)
}

// ThumbnailURL is the public URL of the latest snapshot.
func ThumbnailURL(storageBase, broadcastID string) string {
	return joinURL(storageBase, SnapshotPath(broadcastID))
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + path
}
