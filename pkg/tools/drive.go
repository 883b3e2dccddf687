// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/graph"
)

// Drive implements the drive tools.
type Drive struct {
	graph          *graph.Client
	baseURL        string
	maxBase64Bytes int64
}

// NewDrive creates the drive tool set. maxBase64Bytes bounds any content
// that transits the gateway base64-encoded, in either direction.
func NewDrive(graphClient *graph.Client, baseURL string, maxBase64Bytes int64) *Drive {
	return &Drive{graph: graphClient, baseURL: baseURL, maxBase64Bytes: maxBase64Bytes}
}

// ItemRef addresses a drive item by id or path, on the default or a
// named drive.
type ItemRef struct {
	DriveID string `json:"drive_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	Path    string `json:"path,omitempty"`
}

// itemURL resolves an ItemRef to its upstream URL. With no reference at
// all, the default drive root is addressed.
func (d *Drive) itemURL(ref ItemRef) string {
	switch {
	case ref.DriveID != "" && ref.ItemID != "":
		return fmt.Sprintf("%s/drives/%s/items/%s", d.baseURL, ref.DriveID, ref.ItemID)
	case ref.DriveID != "" && ref.Path != "":
		return fmt.Sprintf("%s/drives/%s/root:/%s", d.baseURL, ref.DriveID, ref.Path)
	case ref.ItemID != "":
		return fmt.Sprintf("%s/me/drive/items/%s", d.baseURL, ref.ItemID)
	case ref.Path != "":
		return fmt.Sprintf("%s/me/drive/root:/%s", d.baseURL, ref.Path)
	default:
		return d.baseURL + "/me/drive/root"
	}
}

// decodeBase64Payload decodes caller-supplied base64 content, enforcing
// the configured size bound.
func (d *Drive) decodeBase64Payload(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Validation("content_base64 is not valid base64")
	}
	if int64(len(raw)) > d.maxBase64Bytes {
		return nil, errors.PayloadTooLarge("payload too large")
	}
	return raw, nil
}

// GetDefaultDrive returns the user's default drive.
func (d *Drive) GetDefaultDrive(ctx context.Context, token string) (map[string]any, error) {
	payload, err := d.graph.RequestJSON(ctx, http.MethodGet, d.baseURL+"/me/drive", token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"drive": mapDrive(payload)}, nil
}

// ListChildrenArgs are the arguments for drive_list_children.
type ListChildrenArgs struct {
	ItemRef
	Pagination *graph.Pagination `json:"pagination,omitempty"`
}

// ListChildren lists the children of a drive item.
func (d *Drive) ListChildren(ctx context.Context, token string, args ListChildrenArgs) (map[string]any, error) {
	payload, err := d.graph.RequestJSON(ctx, http.MethodGet, d.itemURL(args.ItemRef)+"/children", token,
		graph.WithQuery(args.Pagination.QueryParams()))
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, mapItem(item))
	}
	return map[string]any{
		"items":       items,
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// GetItemArgs are the arguments for drive_get_item.
type GetItemArgs struct {
	ItemRef
}

// GetItem fetches a drive item's metadata.
func (d *Drive) GetItem(ctx context.Context, token string, args GetItemArgs) (map[string]any, error) {
	payload, err := d.graph.RequestJSON(ctx, http.MethodGet, d.itemURL(args.ItemRef), token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": mapItem(payload)}, nil
}

// SearchArgs are the arguments for drive_search.
type SearchArgs struct {
	Query      string            `json:"query"`
	Path       string            `json:"path,omitempty"`
	Pagination *graph.Pagination `json:"pagination,omitempty"`
}

// Search searches the default drive.
func (d *Drive) Search(ctx context.Context, token string, args SearchArgs) (map[string]any, error) {
	if args.Query == "" {
		return nil, errors.Validation("query is required")
	}
	path := args.Path
	if path == "" {
		path = "root"
	}

	requestURL := fmt.Sprintf("%s/me/drive/%s/search(q='%s')", d.baseURL, path, args.Query)
	payload, err := d.graph.RequestJSON(ctx, http.MethodGet, requestURL, token,
		graph.WithQuery(args.Pagination.QueryParams()))
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, mapItem(item))
	}
	return map[string]any{
		"items":       items,
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// DownloadFileArgs are the arguments for drive_download_file.
type DownloadFileArgs struct {
	ItemRef
	ReturnMode string `json:"return_mode,omitempty"`
	MaxBytes   int64  `json:"max_bytes,omitempty"`
}

// DownloadFile returns either a short-lived download URL (the default)
// or the file content base64-encoded, subject to the size bound.
func (d *Drive) DownloadFile(ctx context.Context, token string, args DownloadFileArgs) (map[string]any, error) {
	itemURL := d.itemURL(args.ItemRef)

	if args.ReturnMode == "" || args.ReturnMode == "download_url" {
		payload, err := d.graph.RequestJSON(ctx, http.MethodGet, itemURL, token)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"download_url": payload["@microsoft.graph.downloadUrl"],
			"size_bytes":   payload["size"],
		}, nil
	}

	maxBytes := d.maxBase64Bytes
	if args.MaxBytes > 0 && args.MaxBytes < maxBytes {
		maxBytes = args.MaxBytes
	}

	raw, err := d.graph.RequestBytes(ctx, http.MethodGet, itemURL+"/content", token)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, errors.PayloadTooLarge("file too large for base64")
	}
	return map[string]any{
		"content_base64": base64.StdEncoding.EncodeToString(raw),
		"size_bytes":     len(raw),
	}, nil
}

// UploadSmallFileArgs are the arguments for drive_upload_small_file.
type UploadSmallFileArgs struct {
	ParentPath     string `json:"parent_path,omitempty"`
	Filename       string `json:"filename"`
	ContentBase64  string `json:"content_base64"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// UploadSmallFile uploads a file in a single request.
func (d *Drive) UploadSmallFile(ctx context.Context, token string, args UploadSmallFileArgs) (map[string]any, error) {
	if args.Filename == "" {
		return nil, errors.Validation("filename is required")
	}
	content, err := d.decodeBase64Payload(args.ContentBase64)
	if err != nil {
		return nil, err
	}

	parentPath := strings.Trim(args.ParentPath, "/")
	requestURL := fmt.Sprintf("%s/me/drive/root:/%s/%s:/content", d.baseURL, parentPath, args.Filename)

	payload, err := d.graph.RequestJSON(ctx, http.MethodPut, requestURL, token,
		graph.WithRawBody(content, "application/octet-stream"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": mapItem(payload)}, nil
}

// CreateUploadSessionArgs are the arguments for drive_create_upload_session.
type CreateUploadSessionArgs struct {
	ParentPath       string `json:"parent_path,omitempty"`
	Filename         string `json:"filename"`
	ConflictBehavior string `json:"conflict_behavior,omitempty"`
	IdempotencyKey   string `json:"idempotency_key,omitempty"`
}

// CreateUploadSession opens a resumable upload session for large files.
func (d *Drive) CreateUploadSession(ctx context.Context, token string, args CreateUploadSessionArgs) (map[string]any, error) {
	if args.Filename == "" {
		return nil, errors.Validation("filename is required")
	}
	conflictBehavior := args.ConflictBehavior
	if conflictBehavior == "" {
		conflictBehavior = "rename"
	}

	parentPath := strings.Trim(args.ParentPath, "/")
	requestURL := fmt.Sprintf("%s/me/drive/root:/%s/%s:/createUploadSession", d.baseURL, parentPath, args.Filename)

	payload, err := d.graph.RequestJSON(ctx, http.MethodPost, requestURL, token,
		graph.WithJSONBody(map[string]any{
			"item": map[string]any{
				"@microsoft.graph.conflictBehavior": conflictBehavior,
				"name":                              args.Filename,
			},
		}))
	if err != nil {
		return nil, err
	}

	ranges, _ := payload["nextExpectedRanges"].([]any)
	if ranges == nil {
		ranges = []any{}
	}
	return map[string]any{
		"upload_session": map[string]any{
			"upload_url":           payload["uploadUrl"],
			"expiration_datetime":  payload["expirationDateTime"],
			"next_expected_ranges": ranges,
		},
	}, nil
}

// UploadChunkArgs are the arguments for drive_upload_chunk.
type UploadChunkArgs struct {
	UploadURL     string `json:"upload_url"`
	ContentBase64 string `json:"content_base64"`
	ChunkStart    int64  `json:"chunk_start"`
	ChunkEnd      int64  `json:"chunk_end"`
	TotalSize     int64  `json:"total_size"`
}

// UploadChunk uploads one byte range of a resumable upload session.
func (d *Drive) UploadChunk(ctx context.Context, token string, args UploadChunkArgs) (map[string]any, error) {
	if args.UploadURL == "" {
		return nil, errors.Validation("upload_url is required")
	}
	content, err := d.decodeBase64Payload(args.ContentBase64)
	if err != nil {
		return nil, err
	}

	payload, err := d.graph.RequestJSON(ctx, http.MethodPut, args.UploadURL, token,
		graph.WithRawBody(content, "application/octet-stream"),
		graph.WithHeaders(map[string]string{
			"Content-Range": fmt.Sprintf("bytes %d-%d/%d", args.ChunkStart, args.ChunkEnd, args.TotalSize),
		}))
	if err != nil {
		return nil, err
	}

	status := "completed"
	ranges, hasRanges := payload["nextExpectedRanges"].([]any)
	if hasRanges {
		status = "in_progress"
	} else {
		ranges = []any{}
	}

	var item map[string]any
	if payload["id"] != nil {
		item = mapItem(payload)
	}
	return map[string]any{
		"status":               status,
		"next_expected_ranges": ranges,
		"item":                 item,
	}, nil
}

// CreateFolderArgs are the arguments for drive_create_folder.
type CreateFolderArgs struct {
	ParentPath       string `json:"parent_path,omitempty"`
	FolderName       string `json:"folder_name"`
	ConflictBehavior string `json:"conflict_behavior,omitempty"`
}

// CreateFolder creates a folder under a parent path.
func (d *Drive) CreateFolder(ctx context.Context, token string, args CreateFolderArgs) (map[string]any, error) {
	if args.FolderName == "" {
		return nil, errors.Validation("folder_name is required")
	}
	conflictBehavior := args.ConflictBehavior
	if conflictBehavior == "" {
		conflictBehavior = "rename"
	}

	parentPath := strings.Trim(args.ParentPath, "/")
	requestURL := fmt.Sprintf("%s/me/drive/root:/%s:/children", d.baseURL, parentPath)

	payload, err := d.graph.RequestJSON(ctx, http.MethodPost, requestURL, token,
		graph.WithJSONBody(map[string]any{
			"name":   args.FolderName,
			"folder": map[string]any{},
			"@microsoft.graph.conflictBehavior": conflictBehavior,
		}))
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": mapItem(payload)}, nil
}

// DeleteItemArgs are the arguments for drive_delete_item.
type DeleteItemArgs struct {
	ItemRef
}

// DeleteItem deletes a drive item.
func (d *Drive) DeleteItem(ctx context.Context, token string, args DeleteItemArgs) (map[string]any, error) {
	_, err := d.graph.RequestJSON(ctx, http.MethodDelete, d.itemURL(args.ItemRef), token)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

// CreateShareLinkArgs are the arguments for drive_share_create_link.
type CreateShareLinkArgs struct {
	ItemRef
	LinkType string `json:"link_type,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

// CreateShareLink creates a sharing link for a drive item.
func (d *Drive) CreateShareLink(ctx context.Context, token string, args CreateShareLinkArgs) (map[string]any, error) {
	linkType := args.LinkType
	if linkType == "" {
		linkType = "view"
	}
	scope := args.Scope
	if scope == "" {
		scope = "organization"
	}

	payload, err := d.graph.RequestJSON(ctx, http.MethodPost, d.itemURL(args.ItemRef)+"/createLink", token,
		graph.WithJSONBody(map[string]any{
			"type":  linkType,
			"scope": scope,
		}))
	if err != nil {
		return nil, err
	}

	link, _ := payload["link"].(map[string]any)
	return map[string]any{
		"link_url":  link["webUrl"],
		"link_type": link["type"],
		"scope":     link["scope"],
	}, nil
}

func mapDrive(item map[string]any) map[string]any {
	owner, _ := item["owner"].(map[string]any)
	user, _ := owner["user"].(map[string]any)
	return map[string]any{
		"id":         item["id"],
		"drive_type": item["driveType"],
		"owner":      user["displayName"],
		"web_url":    item["webUrl"],
	}
}

func mapItem(item map[string]any) map[string]any {
	if item == nil {
		return nil
	}
	parent, _ := item["parentReference"].(map[string]any)
	file, _ := item["file"].(map[string]any)
	_, isFolder := item["folder"]
	return map[string]any{
		"id":         item["id"],
		"name":       item["name"],
		"path":       parent["path"],
		"size_bytes": item["size"],
		"is_folder":  isFolder,
		"mime_type":  file["mimeType"],
		"web_url":    item["webUrl"],
	}
}
