// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/graphmcp/pkg/errors"
)

const testMaxBase64 = 1024

func TestDriveItemURL(t *testing.T) {
	t.Parallel()
	drive := NewDrive(newToolsClient(), "https://graph.example.com/v1.0", testMaxBase64)

	tests := []struct {
		name string
		ref  ItemRef
		want string
	}{
		{"drive and item", ItemRef{DriveID: "d1", ItemID: "i1"}, "https://graph.example.com/v1.0/drives/d1/items/i1"},
		{"drive and path", ItemRef{DriveID: "d1", Path: "docs/a.txt"}, "https://graph.example.com/v1.0/drives/d1/root:/docs/a.txt"},
		{"item only", ItemRef{ItemID: "i1"}, "https://graph.example.com/v1.0/me/drive/items/i1"},
		{"path only", ItemRef{Path: "docs/a.txt"}, "https://graph.example.com/v1.0/me/drive/root:/docs/a.txt"},
		{"default root", ItemRef{}, "https://graph.example.com/v1.0/me/drive/root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, drive.itemURL(tt.ref))
		})
	}
}

func TestDriveGetDefaultDrive(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/drive", map[string]any{
		"id":        "drive-1",
		"driveType": "business",
		"owner":     map[string]any{"user": map[string]any{"displayName": "A User"}},
		"webUrl":    "https://example.sharepoint.com",
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.GetDefaultDrive(context.Background(), "token-1")
	require.NoError(t, err)
	mapped := result["drive"].(map[string]any)
	assert.Equal(t, "drive-1", mapped["id"])
	assert.Equal(t, "A User", mapped["owner"])
}

func TestDriveListChildren(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/drive/items/i1/children", map[string]any{
		"value": []any{
			map[string]any{
				"id":              "child-1",
				"name":            "notes.txt",
				"size":            128,
				"parentReference": map[string]any{"path": "/drive/root:"},
				"file":            map[string]any{"mimeType": "text/plain"},
			},
			map[string]any{
				"id":     "child-2",
				"name":   "docs",
				"folder": map[string]any{"childCount": 3},
			},
		},
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.ListChildren(context.Background(), "token-1", ListChildrenArgs{
		ItemRef: ItemRef{ItemID: "i1"},
	})
	require.NoError(t, err)

	items := result["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, false, items[0]["is_folder"])
	assert.Equal(t, "text/plain", items[0]["mime_type"])
	assert.Equal(t, true, items[1]["is_folder"])
}

func TestDriveSearch(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/drive/root/search(q='report')", map[string]any{"value": []any{}})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	_, err := drive.Search(context.Background(), "token-1", SearchArgs{Query: "report"})
	require.NoError(t, err)

	_, err = drive.Search(context.Background(), "token-1", SearchArgs{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestDriveDownloadFile_URLMode(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/drive/items/i1", map[string]any{
		"@microsoft.graph.downloadUrl": "https://download.example.com/i1",
		"size":                         4096,
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.DownloadFile(context.Background(), "token-1", DownloadFileArgs{
		ItemRef: ItemRef{ItemID: "i1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://download.example.com/i1", result["download_url"])
}

func TestDriveUploadSmallFile(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("PUT", "/me/drive/root:/docs/notes.txt:/content", map[string]any{
		"id":   "item-1",
		"name": "notes.txt",
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	content := base64.StdEncoding.EncodeToString([]byte("hello"))
	result, err := drive.UploadSmallFile(context.Background(), "token-1", UploadSmallFileArgs{
		ParentPath:    "/docs/",
		Filename:      "notes.txt",
		ContentBase64: content,
	})
	require.NoError(t, err)
	item := result["item"].(map[string]any)
	assert.Equal(t, "item-1", item["id"])

	req := stub.lastRequest(t)
	assert.Equal(t, "application/octet-stream", req.header.Get("Content-Type"))
	assert.Equal(t, []byte("hello"), req.body)
}

func TestDriveUploadSmallFile_PayloadTooLarge(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	drive := NewDrive(newToolsClient(), stub.server.URL, 4)

	content := base64.StdEncoding.EncodeToString([]byte("more than four bytes"))
	_, err := drive.UploadSmallFile(context.Background(), "token-1", UploadSmallFileArgs{
		Filename:      "big.bin",
		ContentBase64: content,
	})
	require.Error(t, err)
	mcpErr := errors.FromErr(err)
	assert.Equal(t, errors.CodeValidationError, mcpErr.Code)
	assert.Equal(t, 413, mcpErr.Status)
}

func TestDriveUploadSmallFile_BadBase64(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	_, err := drive.UploadSmallFile(context.Background(), "token-1", UploadSmallFileArgs{
		Filename:      "x.bin",
		ContentBase64: "!!!not-base64!!!",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestDriveCreateUploadSession(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/drive/root:/docs/big.bin:/createUploadSession", map[string]any{
		"uploadUrl":          "https://upload.example.com/session-1",
		"expirationDateTime": "2026-08-02T00:00:00Z",
		"nextExpectedRanges": []any{"0-"},
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.CreateUploadSession(context.Background(), "token-1", CreateUploadSessionArgs{
		ParentPath: "docs",
		Filename:   "big.bin",
	})
	require.NoError(t, err)
	session := result["upload_session"].(map[string]any)
	assert.Equal(t, "https://upload.example.com/session-1", session["upload_url"])

	var sent map[string]any
	require.NoError(t, jsonUnmarshal(stub.lastRequest(t).body, &sent))
	item := sent["item"].(map[string]any)
	assert.Equal(t, "rename", item["@microsoft.graph.conflictBehavior"])
}

func TestDriveUploadChunk(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("PUT", "/upload/session-1", map[string]any{
		"nextExpectedRanges": []any{"512-"},
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	content := base64.StdEncoding.EncodeToString([]byte("chunk"))
	result, err := drive.UploadChunk(context.Background(), "token-1", UploadChunkArgs{
		UploadURL:     stub.server.URL + "/upload/session-1",
		ContentBase64: content,
		ChunkStart:    0,
		ChunkEnd:      511,
		TotalSize:     1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", result["status"])
	assert.Equal(t, "bytes 0-511/1024", stub.lastRequest(t).header.Get("Content-Range"))
}

func TestDriveCreateFolderAndShareLink(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/drive/root:/docs:/children", map[string]any{
		"id":     "folder-1",
		"name":   "reports",
		"folder": map[string]any{},
	})
	stub.respond("POST", "/me/drive/items/i1/createLink", map[string]any{
		"link": map[string]any{
			"webUrl": "https://share.example.com/x",
			"type":   "view",
			"scope":  "organization",
		},
	})
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.CreateFolder(context.Background(), "token-1", CreateFolderArgs{
		ParentPath: "docs",
		FolderName: "reports",
	})
	require.NoError(t, err)
	item := result["item"].(map[string]any)
	assert.Equal(t, true, item["is_folder"])

	result, err = drive.CreateShareLink(context.Background(), "token-1", CreateShareLinkArgs{
		ItemRef: ItemRef{ItemID: "i1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://share.example.com/x", result["link_url"])
}

func TestDriveDeleteItem(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	drive := NewDrive(newToolsClient(), stub.server.URL, testMaxBase64)

	result, err := drive.DeleteItem(context.Background(), "token-1", DeleteItemArgs{
		ItemRef: ItemRef{ItemID: "i1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, "DELETE", stub.lastRequest(t).method)
}

func TestPlatformGetProfile(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me", map[string]any{
		"id":                "user-1",
		"displayName":       "Test User",
		"userPrincipalName": "user@example.com",
		"mail":              "user@example.com",
	})
	platform := NewPlatform(newToolsClient(), stub.server.URL)

	result, err := platform.GetProfile(context.Background(), "token-1")
	require.NoError(t, err)
	profile := result["profile"].(map[string]any)
	assert.Equal(t, "user-1", profile["id"])
	assert.Equal(t, "Test User", profile["display_name"])
	assert.Equal(t, "id,displayName,userPrincipalName,mail", stub.lastRequest(t).query.Get("$select"))
}
