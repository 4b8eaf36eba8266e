package normalize

import (
	"regexp"
	"time"

	"weld/pkg/models"
)

// blobNamePattern matches the final path segment of an upload URL when it
// has the form "<digits>-<filename>". The digits are the batch id and the
// filename is the item name.
var blobNamePattern = regexp.MustCompile(`/(\d+)-([^/]+)$`)

// ItemArrival is what the dispatcher works with after a raw notification
// has been picked apart.
type ItemArrival struct {
	BatchID    string
	ItemName   string
	Location   string
	Valid      bool
	ReceivedAt time.Time
}

// Normalize extracts batch coordinates from a notification. It never
// fails: a URL that does not match the naming convention yields an
// arrival with an empty BatchID and Valid=false.
func Normalize(n models.Notification) ItemArrival {
	arrival := ItemArrival{
		ReceivedAt: time.Now(),
	}

	url, ok := n.URL()
	if !ok || url == "" {
		return arrival
	}
	arrival.Location = url

	matches := blobNamePattern.FindStringSubmatch(url)
	if matches == nil {
		return arrival
	}

	arrival.BatchID = matches[1]
	arrival.ItemName = matches[2]
	arrival.Valid = true
	return arrival
}
