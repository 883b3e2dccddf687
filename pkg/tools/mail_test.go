// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/graph"
)

func TestMailListFolders(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/mailFolders", map[string]any{
		"value": []any{
			map[string]any{
				"id":              "folder-1",
				"displayName":     "Inbox",
				"parentFolderId":  "root",
				"totalItemCount":  42,
				"unreadItemCount": 7,
			},
		},
		"@odata.nextLink": stub.server.URL + "/me/mailFolders?$skiptoken=tok123",
	})
	mail := NewMail(newToolsClient(), stub.server.URL)

	result, err := mail.ListFolders(context.Background(), "token-1", ListFoldersArgs{
		Pagination: &graph.Pagination{PageSize: 10},
	})
	require.NoError(t, err)

	items := result["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Inbox", items[0]["display_name"])
	require.NotNil(t, result["next_cursor"])
	assert.Equal(t, "tok123", *result["next_cursor"].(*string))

	req := stub.lastRequest(t)
	assert.Equal(t, "isHidden eq false", req.query.Get("$filter"))
	assert.Equal(t, "10", req.query.Get("$top"))
}

func TestMailListMessages_Filters(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/mailFolders/folder-1/messages", map[string]any{"value": []any{}})
	mail := NewMail(newToolsClient(), stub.server.URL)

	_, err := mail.ListMessages(context.Background(), "token-1", ListMessagesArgs{
		FolderID:     "folder-1",
		FromDatetime: "2026-01-01T00:00:00Z",
		UnreadOnly:   true,
		SelectFields: []string{"id", "subject"},
	})
	require.NoError(t, err)

	req := stub.lastRequest(t)
	assert.Equal(t, "/me/mailFolders/folder-1/messages", req.path)
	assert.Equal(t, "receivedDateTime ge 2026-01-01T00:00:00Z and isRead eq false", req.query.Get("$filter"))
	assert.Equal(t, "id,subject", req.query.Get("$select"))
}

func TestMailGetMessage_SelectsBody(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/messages/msg-1", map[string]any{
		"id":      "msg-1",
		"subject": "Hello",
		"from": map[string]any{
			"emailAddress": map[string]any{"address": "a@example.com", "name": "A"},
		},
		"body": map[string]any{"contentType": "HTML", "content": "<p>hi</p>"},
	})
	mail := NewMail(newToolsClient(), stub.server.URL)

	result, err := mail.GetMessage(context.Background(), "token-1", GetMessageArgs{
		MessageID:   "msg-1",
		IncludeBody: true,
	})
	require.NoError(t, err)

	message := result["message"].(map[string]any)
	assert.Equal(t, "msg-1", message["id"])
	body := message["body"].(map[string]any)
	assert.Equal(t, "html", body["content_type"])

	req := stub.lastRequest(t)
	assert.Contains(t, req.query.Get("$select"), "body")
}

func TestMailGetMessage_RequiresID(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	mail := NewMail(newToolsClient(), stub.server.URL)

	_, err := mail.GetMessage(context.Background(), "token-1", GetMessageArgs{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestMailSearchMessages(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/messages", map[string]any{"value": []any{}})
	mail := NewMail(newToolsClient(), stub.server.URL)

	_, err := mail.SearchMessages(context.Background(), "token-1", SearchMessagesArgs{Query: "quarterly report"})
	require.NoError(t, err)

	req := stub.lastRequest(t)
	assert.Equal(t, `"quarterly report"`, req.query.Get("$search"))
	assert.Equal(t, "true", req.query.Get("$count"))
	assert.Equal(t, "eventual", req.header.Get("Consistencylevel"))

	_, err = mail.SearchMessages(context.Background(), "token-1", SearchMessagesArgs{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationError, errors.FromErr(err).Code)
}

func TestMailCreateDraft(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/messages", map[string]any{"id": "draft-1"})
	mail := NewMail(newToolsClient(), stub.server.URL)

	result, err := mail.CreateDraft(context.Background(), "token-1", CreateDraftArgs{
		Subject: "Hello",
		Body:    &MessageBody{ContentType: "text", Content: "hi"},
		To:      []Recipient{{Email: "a@example.com", Name: "A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "draft-1", result["draft_id"])

	req := stub.lastRequest(t)
	var sent map[string]any
	require.NoError(t, jsonUnmarshal(req.body, &sent))
	assert.Equal(t, "Hello", sent["subject"])
	body := sent["body"].(map[string]any)
	assert.Equal(t, "TEXT", body["contentType"])
	to := sent["toRecipients"].([]any)
	require.Len(t, to, 1)
}

func TestMailSendDraftAndReply(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	mail := NewMail(newToolsClient(), stub.server.URL)

	result, err := mail.SendDraft(context.Background(), "token-1", SendDraftArgs{DraftID: "draft-1"})
	require.NoError(t, err)
	assert.Equal(t, "sent", result["status"])
	assert.Equal(t, "/me/messages/draft-1/send", stub.lastRequest(t).path)

	result, err = mail.Reply(context.Background(), "token-1", ReplyArgs{
		MessageID: "msg-1",
		ReplyAll:  true,
		Comment:   &MessageBody{Content: "thanks"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sent", result["status"])
	assert.Equal(t, "/me/messages/msg-1/replyAll", stub.lastRequest(t).path)
}

func TestMailMarkReadAndMove(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("POST", "/me/messages/msg-1/move", map[string]any{"id": "msg-1-moved"})
	mail := NewMail(newToolsClient(), stub.server.URL)

	_, err := mail.MarkRead(context.Background(), "token-1", MarkReadArgs{MessageID: "msg-1", IsRead: true})
	require.NoError(t, err)
	req := stub.lastRequest(t)
	assert.Equal(t, "PATCH", req.method)

	result, err := mail.MoveMessage(context.Background(), "token-1", MoveMessageArgs{
		MessageID:           "msg-1",
		DestinationFolderID: "folder-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1-moved", result["message_id"])
	assert.Equal(t, "folder-2", result["destination_folder_id"])
}

func TestMailGetAttachment(t *testing.T) {
	t.Parallel()
	stub := newUpstreamStub(t)
	stub.respond("GET", "/me/messages/msg-1/attachments/att-1", map[string]any{
		"id":           "att-1",
		"name":         "report.pdf",
		"contentType":  "application/pdf",
		"size":         1024,
		"contentBytes": "cGRmLWJ5dGVz",
	})
	mail := NewMail(newToolsClient(), stub.server.URL)

	result, err := mail.GetAttachment(context.Background(), "token-1", GetAttachmentArgs{
		MessageID:    "msg-1",
		AttachmentID: "att-1",
	})
	require.NoError(t, err)
	attachment := result["attachment"].(map[string]any)
	assert.Equal(t, "report.pdf", attachment["name"])
	assert.Nil(t, attachment["content_base64"], "content withheld unless requested")

	result, err = mail.GetAttachment(context.Background(), "token-1", GetAttachmentArgs{
		MessageID:            "msg-1",
		AttachmentID:         "att-1",
		IncludeContentBase64: true,
	})
	require.NoError(t, err)
	attachment = result["attachment"].(map[string]any)
	assert.Equal(t, "cGRmLWJ5dGVz", attachment["content_base64"])
}
