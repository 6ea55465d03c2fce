package nntp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNewsgroupNotFound is returned when the server answers GROUP with 411.
	ErrNewsgroupNotFound = errors.New("newsgroup not found")
	// ErrNoArticles is returned when XOVER reports no articles in the range.
	ErrNoArticles = errors.New("no articles in range")
)

// SelectGroup selects a newsgroup for operation
func (c *BackendConn) SelectGroup(ctx context.Context, groupName string) (*GroupInfo, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectGroupLocked(ctx, groupName)
}

func (c *BackendConn) selectGroupLocked(ctx context.Context, groupName string) (*GroupInfo, int, error) {
	if !c.connected {
		return nil, 0, fmt.Errorf("not connected")
	}
	c.lastUsed = time.Now()
	c.applyDeadline(ctx)
	defer c.clearDeadline()
	stop := c.watchContext(ctx)
	defer stop()

	id, err := c.textConn.Cmd("GROUP %s", groupName)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send GROUP '%s' command: %w", groupName, err)
	}

	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(GroupSelected)
	if code == NoSuchGroup {
		return nil, code, ErrNewsgroupNotFound
	}
	if err != nil {
		return nil, code, fmt.Errorf("failed to read GROUP '%s' response: %w", groupName, err)
	}

	// RFC 3977: "211 count first last group"
	parts := strings.Fields(message)
	if len(parts) < 4 {
		return nil, code, fmt.Errorf(
			"malformed GROUP response (expected 'count first last group'): %s group %s",
			message, groupName,
		)
	}

	count, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, code, fmt.Errorf("failed to parse count in GROUP '%s' response: %w", groupName, err)
	}
	first, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, code, fmt.Errorf("failed to parse first in GROUP '%s' response: %w", groupName, err)
	}
	last, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, code, fmt.Errorf("failed to parse last in GROUP '%s' response: %w", groupName, err)
	}

	return &GroupInfo{
		Name:  groupName,
		Count: count,
		First: first,
		Last:  last,
	}, code, nil
}

// XOver retrieves overview data for the inclusive range start-end.
func (c *BackendConn) XOver(ctx context.Context, groupName string, start, end int64) ([]OverviewLine, error) {
	if groupName == "" {
		return nil, fmt.Errorf("error XOver: group name is required")
	}
	if end < start {
		return nil, fmt.Errorf("error XOver: invalid range %d-%d", start, end)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, _, err := c.selectGroupLocked(ctx, groupName); err != nil {
		return nil, fmt.Errorf("failed to select group '%s': %w", groupName, err)
	}
	c.applyDeadline(ctx)
	defer c.clearDeadline()
	stop := c.watchContext(ctx)
	defer stop()

	id, err := c.textConn.Cmd("XOVER %d-%d", start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to send XOVER command: %w", err)
	}

	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(OverviewFollows)
	if code == NoArticlesInRange {
		return nil, ErrNoArticles
	}
	if err != nil {
		return nil, fmt.Errorf("XOVER failed: %d %s: %w", code, message, err)
	}

	lines, err := c.readMultilineResponse()
	if err != nil {
		return nil, fmt.Errorf("failed to read XOVER data: %w", err)
	}

	overviews := make([]OverviewLine, 0, len(lines))
	for _, line := range lines {
		overview, err := parseOverviewLine(line)
		if err != nil {
			continue // Skip malformed lines
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// readMultilineResponse reads a multi-line response ending with "."
func (c *BackendConn) readMultilineResponse() ([]string, error) {
	var lines []string
	for {
		if len(lines) >= MaxReadLines {
			return nil, fmt.Errorf("too many lines in response (limit: %d)", MaxReadLines)
		}

		line, err := c.textConn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "." {
			break
		}
		// Handle dot-stuffing (lines starting with .. become .)
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// parseOverviewLine parses a single XOVER response line
// Format: articlenum<tab>subject<tab>from<tab>date<tab>message-id<tab>references<tab>bytes<tab>lines[<tab>Xref: ...]
func parseOverviewLine(line string) (OverviewLine, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 7 {
		return OverviewLine{}, fmt.Errorf("malformed XOVER line: %s", line)
	}

	articleNum, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return OverviewLine{}, fmt.Errorf("malformed article number in XOVER line: %s", line)
	}
	bytes, _ := strconv.ParseInt(parts[6], 10, 64)
	lines := int64(0)
	if len(parts) > 7 {
		lines, _ = strconv.ParseInt(parts[7], 10, 64)
	}

	var xref string
	for _, extra := range parts[min(len(parts), 8):] {
		if len(extra) > 5 && strings.EqualFold(extra[:5], "xref:") {
			xref = strings.TrimSpace(extra[5:])
			break
		}
	}

	return OverviewLine{
		ArticleNum: articleNum,
		Subject:    parts[1],
		From:       parts[2],
		Date:       parts[3],
		MessageID:  parts[4],
		References: parts[5],
		Bytes:      bytes,
		Lines:      lines,
		Xref:       xref,
	}, nil
}
