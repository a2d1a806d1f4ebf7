package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

// readPostsCSV parses an export with a header row. Column order is free;
// post_id, user_id, latitude and longitude are required.
func readPostsCSV(r io.Reader) ([]domain.Post, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range []string{"post_id", "user_id", "latitude", "longitude"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
	}

	var posts []domain.Post
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := postFromRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func postFromRecord(record []string, cols map[string]int) (domain.Post, error) {
	p := domain.Post{
		ID:           getField(record, cols, "post_id"),
		OwnerID:      getField(record, cols, "user_id"),
		ImageID:      getField(record, cols, "img_id"),
		UserQuestion: getField(record, cols, "user_question"),
		AIAnswer:     getField(record, cols, "ai_answer"),
		AIQuestion:   getField(record, cols, "ai_question"),
		ObjectLabel:  getField(record, cols, "object_label"),
		Location:     getField(record, cols, "location"),
		IsPublic:     true,
	}
	if ref := getField(record, cols, "ai_reference"); ref != "" {
		p.AIReference = &ref
	}

	var err error
	if p.Latitude, err = strconv.ParseFloat(getField(record, cols, "latitude"), 64); err != nil {
		return p, fmt.Errorf("latitude: %w", err)
	}
	if p.Longitude, err = strconv.ParseFloat(getField(record, cols, "longitude"), 64); err != nil {
		return p, fmt.Errorf("longitude: %w", err)
	}
	if !p.Coordinate().Valid() {
		return p, fmt.Errorf("coordinate out of range")
	}
	if v := getField(record, cols, "is_public"); v != "" {
		if p.IsPublic, err = strconv.ParseBool(v); err != nil {
			return p, fmt.Errorf("is_public: %w", err)
		}
	}
	if v := getField(record, cols, "post_rarity"); v != "" {
		if p.Rarity, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("post_rarity: %w", err)
		}
	}
	if v := getField(record, cols, "date"); v != "" {
		if p.CreatedAt, err = time.Parse(time.RFC3339, v); err != nil {
			return p, fmt.Errorf("date: %w", err)
		}
	}
	return p, nil
}

// readPostsJSON accepts either a bare array or the {"posts": [...]} page
// shape served by the backend.
func readPostsJSON(r io.Reader) ([]domain.Post, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var posts []domain.Post
		if err := json.Unmarshal(data, &posts); err != nil {
			return nil, fmt.Errorf("parse posts: %w", err)
		}
		return posts, nil
	}
	var page domain.PostPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("parse posts: %w", err)
	}
	return page.Posts, nil
}

func indexColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		// Strip BOM from first column
		col = strings.TrimPrefix(col, "\xef\xbb\xbf")
		m[strings.TrimSpace(col)] = i
	}
	return m
}

func getField(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
