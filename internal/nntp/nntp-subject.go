package nntp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/go-while/go-pugbin/internal/models"
)

// segmentMarkerRe matches the "(n/N)" marker posting tools append to
// the subject of every segment of a multi-part binary.
var segmentMarkerRe = regexp.MustCompile(`\((\d+)/(\d+)\)`)

// ParseSegmentSubject splits a subject into its base and the last (n/N)
// marker. ok is false when there is no usable marker, including one whose
// segment number exceeds its total.
func ParseSegmentSubject(subject string) (base string, segment, total int, ok bool) {
	locs := segmentMarkerRe.FindAllStringSubmatchIndex(subject, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(subject), 0, 0, false
	}
	loc := locs[len(locs)-1]
	segment, errS := strconv.Atoi(subject[loc[2]:loc[3]])
	total, errT := strconv.Atoi(subject[loc[4]:loc[5]])
	base = strings.TrimSpace(subject[:loc[0]] + subject[loc[1]:])
	if errS != nil || errT != nil || segment < 1 || total < 1 || segment > total {
		return base, 0, 0, false
	}
	return base, segment, total, true
}

// toRawMessage converts one overview line into a RawMessage for group.
func toRawMessage(group string, ov *OverviewLine) *models.RawMessage {
	subject := models.DecodeHeader(ov.Subject)
	base, segment, total, _ := ParseSegmentSubject(subject)
	return &models.RawMessage{
		ArticleNum:    ov.ArticleNum,
		Subject:       base,
		From:          models.DecodeHeader(ov.From),
		Group:         group,
		Posted:        ParseNNTPDate(ov.Date),
		Segment:       segment,
		TotalSegments: total,
		Bytes:         ov.Bytes,
		Lines:         ov.Lines,
		MessageID:     strings.Trim(strings.TrimSpace(ov.MessageID), "<>"),
		Xref:          ov.Xref,
	}
}
