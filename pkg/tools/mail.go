// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/graphmcp/pkg/errors"
	"github.com/stacklok/graphmcp/pkg/graph"
)

// Recipient is the caller-facing shape of a mail address.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// MessageBody is the caller-facing shape of a message body.
type MessageBody struct {
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// Mail implements the mail tools.
type Mail struct {
	graph   *graph.Client
	baseURL string
}

// NewMail creates the mail tool set.
func NewMail(graphClient *graph.Client, baseURL string) *Mail {
	return &Mail{graph: graphClient, baseURL: baseURL}
}

// ListFoldersArgs are the arguments for mail_list_folders.
type ListFoldersArgs struct {
	IncludeHidden bool              `json:"include_hidden,omitempty"`
	Pagination    *graph.Pagination `json:"pagination,omitempty"`
}

// ListFolders lists the user's mail folders.
func (m *Mail) ListFolders(ctx context.Context, token string, args ListFoldersArgs) (map[string]any, error) {
	query := args.Pagination.QueryParams()
	if !args.IncludeHidden {
		query.Set("$filter", "isHidden eq false")
	}

	payload, err := m.graph.RequestJSON(ctx, http.MethodGet, m.baseURL+"/me/mailFolders", token,
		graph.WithQuery(query))
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, map[string]any{
			"id":                item["id"],
			"display_name":      item["displayName"],
			"parent_folder_id":  item["parentFolderId"],
			"total_item_count":  item["totalItemCount"],
			"unread_item_count": item["unreadItemCount"],
		})
	}
	return map[string]any{
		"items":       items,
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// ListMessagesArgs are the arguments for mail_list_messages.
type ListMessagesArgs struct {
	FolderID     string            `json:"folder_id,omitempty"`
	FromDatetime string            `json:"from_datetime,omitempty"`
	ToDatetime   string            `json:"to_datetime,omitempty"`
	UnreadOnly   bool              `json:"unread_only,omitempty"`
	SelectFields []string          `json:"select_fields,omitempty"`
	Pagination   *graph.Pagination `json:"pagination,omitempty"`
}

// ListMessages lists messages, optionally scoped to a folder and filtered
// by received time or read state.
func (m *Mail) ListMessages(ctx context.Context, token string, args ListMessagesArgs) (map[string]any, error) {
	requestURL := m.baseURL + "/me/messages"
	if args.FolderID != "" {
		requestURL = fmt.Sprintf("%s/me/mailFolders/%s/messages", m.baseURL, args.FolderID)
	}

	query := args.Pagination.QueryParams()
	var filters []string
	if args.FromDatetime != "" {
		filters = append(filters, "receivedDateTime ge "+args.FromDatetime)
	}
	if args.ToDatetime != "" {
		filters = append(filters, "receivedDateTime le "+args.ToDatetime)
	}
	if args.UnreadOnly {
		filters = append(filters, "isRead eq false")
	}
	if len(filters) > 0 {
		query.Set("$filter", strings.Join(filters, " and "))
	}
	if len(args.SelectFields) > 0 {
		query.Set("$select", strings.Join(args.SelectFields, ","))
	}

	payload, err := m.graph.RequestJSON(ctx, http.MethodGet, requestURL, token, graph.WithQuery(query))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"items":       mapMessageSummaries(payload),
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// GetMessageArgs are the arguments for mail_get_message.
type GetMessageArgs struct {
	MessageID          string `json:"message_id"`
	IncludeBody        bool   `json:"include_body,omitempty"`
	IncludeAttachments bool   `json:"include_attachments,omitempty"`
}

// GetMessage fetches a single message.
func (m *Mail) GetMessage(ctx context.Context, token string, args GetMessageArgs) (map[string]any, error) {
	if args.MessageID == "" {
		return nil, errors.Validation("message_id is required")
	}

	selectFields := []string{"id", "subject", "from", "toRecipients", "ccRecipients", "bccRecipients", "receivedDateTime"}
	if args.IncludeBody {
		selectFields = append(selectFields, "body")
	}
	if args.IncludeAttachments {
		selectFields = append(selectFields, "attachments")
	}
	query := url.Values{}
	query.Set("$select", strings.Join(selectFields, ","))

	payload, err := m.graph.RequestJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/me/messages/%s", m.baseURL, args.MessageID), token, graph.WithQuery(query))
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"message": map[string]any{
			"id":                payload["id"],
			"subject":           payload["subject"],
			"from":              mapRecipient(payload["from"]),
			"to":                mapRecipients(payload["toRecipients"]),
			"cc":                mapRecipients(payload["ccRecipients"]),
			"bcc":               mapRecipients(payload["bccRecipients"]),
			"received_datetime": payload["receivedDateTime"],
			"body":              mapBody(payload["body"]),
			"attachments":       mapAttachments(payload["attachments"]),
		},
	}, nil
}

// SearchMessagesArgs are the arguments for mail_search_messages.
type SearchMessagesArgs struct {
	Query      string            `json:"query"`
	Pagination *graph.Pagination `json:"pagination,omitempty"`
}

// SearchMessages runs a full-text search over the user's messages.
func (m *Mail) SearchMessages(ctx context.Context, token string, args SearchMessagesArgs) (map[string]any, error) {
	if args.Query == "" {
		return nil, errors.Validation("query is required")
	}

	query := args.Pagination.QueryParams()
	query.Set("$search", fmt.Sprintf("%q", args.Query))
	query.Set("$count", "true")

	payload, err := m.graph.RequestJSON(ctx, http.MethodGet, m.baseURL+"/me/messages", token,
		graph.WithQuery(query),
		graph.WithHeaders(map[string]string{"ConsistencyLevel": "eventual"}))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"items":       mapMessageSummaries(payload),
		"next_cursor": graph.NextCursor(payload),
	}, nil
}

// CreateDraftArgs are the arguments for mail_create_draft.
type CreateDraftArgs struct {
	Subject        string       `json:"subject"`
	Body           *MessageBody `json:"body,omitempty"`
	To             []Recipient  `json:"to,omitempty"`
	Cc             []Recipient  `json:"cc,omitempty"`
	Bcc            []Recipient  `json:"bcc,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// CreateDraft creates a draft message.
func (m *Mail) CreateDraft(ctx context.Context, token string, args CreateDraftArgs) (map[string]any, error) {
	body := map[string]any{
		"subject":       args.Subject,
		"body":          mapBodyOut(args.Body),
		"toRecipients":  mapRecipientsOut(args.To),
		"ccRecipients":  mapRecipientsOut(args.Cc),
		"bccRecipients": mapRecipientsOut(args.Bcc),
	}

	payload, err := m.graph.RequestJSON(ctx, http.MethodPost, m.baseURL+"/me/messages", token,
		graph.WithJSONBody(body))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"draft_id": payload["id"],
		"message":  payload,
	}, nil
}

// SendDraftArgs are the arguments for mail_send_draft.
type SendDraftArgs struct {
	DraftID        string `json:"draft_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SendDraft sends a previously created draft.
func (m *Mail) SendDraft(ctx context.Context, token string, args SendDraftArgs) (map[string]any, error) {
	if args.DraftID == "" {
		return nil, errors.Validation("draft_id is required")
	}
	_, err := m.graph.RequestJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/me/messages/%s/send", m.baseURL, args.DraftID), token)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":          "sent",
		"sent_message_id": args.DraftID,
	}, nil
}

// ReplyArgs are the arguments for mail_reply.
type ReplyArgs struct {
	MessageID      string       `json:"message_id"`
	Comment        *MessageBody `json:"comment,omitempty"`
	ReplyAll       bool         `json:"reply_all,omitempty"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// Reply replies to a message, optionally to all recipients.
func (m *Mail) Reply(ctx context.Context, token string, args ReplyArgs) (map[string]any, error) {
	if args.MessageID == "" {
		return nil, errors.Validation("message_id is required")
	}
	endpoint := "reply"
	if args.ReplyAll {
		endpoint = "replyAll"
	}

	comment := ""
	if args.Comment != nil {
		comment = args.Comment.Content
	}
	_, err := m.graph.RequestJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/me/messages/%s/%s", m.baseURL, args.MessageID, endpoint), token,
		graph.WithJSONBody(map[string]any{"comment": comment}))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":          "sent",
		"sent_message_id": args.MessageID,
	}, nil
}

// MarkReadArgs are the arguments for mail_mark_read.
type MarkReadArgs struct {
	MessageID string `json:"message_id"`
	IsRead    bool   `json:"is_read"`
}

// MarkRead updates a message's read flag.
func (m *Mail) MarkRead(ctx context.Context, token string, args MarkReadArgs) (map[string]any, error) {
	if args.MessageID == "" {
		return nil, errors.Validation("message_id is required")
	}
	_, err := m.graph.RequestJSON(ctx, http.MethodPatch,
		fmt.Sprintf("%s/me/messages/%s", m.baseURL, args.MessageID), token,
		graph.WithJSONBody(map[string]any{"isRead": args.IsRead}))
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok"}, nil
}

// MoveMessageArgs are the arguments for mail_move_message.
type MoveMessageArgs struct {
	MessageID           string `json:"message_id"`
	DestinationFolderID string `json:"destination_folder_id"`
}

// MoveMessage moves a message to another folder.
func (m *Mail) MoveMessage(ctx context.Context, token string, args MoveMessageArgs) (map[string]any, error) {
	if args.MessageID == "" || args.DestinationFolderID == "" {
		return nil, errors.Validation("message_id and destination_folder_id are required")
	}
	payload, err := m.graph.RequestJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/me/messages/%s/move", m.baseURL, args.MessageID), token,
		graph.WithJSONBody(map[string]any{"destinationId": args.DestinationFolderID}))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":                "ok",
		"message_id":            payload["id"],
		"destination_folder_id": args.DestinationFolderID,
	}, nil
}

// GetAttachmentArgs are the arguments for mail_get_attachment.
type GetAttachmentArgs struct {
	MessageID            string `json:"message_id"`
	AttachmentID         string `json:"attachment_id"`
	IncludeContentBase64 bool   `json:"include_content_base64,omitempty"`
}

// GetAttachment fetches attachment metadata, optionally with content.
func (m *Mail) GetAttachment(ctx context.Context, token string, args GetAttachmentArgs) (map[string]any, error) {
	if args.MessageID == "" || args.AttachmentID == "" {
		return nil, errors.Validation("message_id and attachment_id are required")
	}
	payload, err := m.graph.RequestJSON(ctx, http.MethodGet,
		fmt.Sprintf("%s/me/messages/%s/attachments/%s", m.baseURL, args.MessageID, args.AttachmentID), token)
	if err != nil {
		return nil, err
	}

	attachment := mapAttachment(payload)
	if args.IncludeContentBase64 {
		attachment["content_base64"] = payload["contentBytes"]
	}
	return map[string]any{"attachment": attachment}, nil
}

func mapMessageSummaries(payload map[string]any) []map[string]any {
	items := make([]map[string]any, 0)
	for _, item := range graph.Items(payload) {
		items = append(items, map[string]any{
			"id":                item["id"],
			"subject":           item["subject"],
			"from":              mapRecipient(item["from"]),
			"received_datetime": item["receivedDateTime"],
			"is_read":           item["isRead"],
			"has_attachments":   item["hasAttachments"],
		})
	}
	return items
}

func mapRecipient(entry any) map[string]any {
	wrapped, ok := entry.(map[string]any)
	if !ok {
		return nil
	}
	email, _ := wrapped["emailAddress"].(map[string]any)
	return map[string]any{
		"email": email["address"],
		"name":  email["name"],
	}
}

func mapRecipients(entries any) []map[string]any {
	raw, ok := entries.([]any)
	if !ok {
		return []map[string]any{}
	}
	recipients := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if mapped := mapRecipient(entry); mapped != nil {
			recipients = append(recipients, mapped)
		}
	}
	return recipients
}

func mapRecipientsOut(recipients []Recipient) []map[string]any {
	out := make([]map[string]any, 0, len(recipients))
	for _, recipient := range recipients {
		out = append(out, map[string]any{
			"emailAddress": map[string]any{
				"address": recipient.Email,
				"name":    recipient.Name,
			},
		})
	}
	return out
}

func mapBody(body any) map[string]any {
	wrapped, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	contentType, _ := wrapped["contentType"].(string)
	return map[string]any{
		"content_type": strings.ToLower(contentType),
		"content":      wrapped["content"],
	}
}

func mapBodyOut(body *MessageBody) map[string]any {
	if body == nil {
		return map[string]any{"contentType": "HTML", "content": ""}
	}
	contentType := body.ContentType
	if contentType == "" {
		contentType = "html"
	}
	return map[string]any{
		"contentType": strings.ToUpper(contentType),
		"content":     body.Content,
	}
}

func mapAttachment(attachment map[string]any) map[string]any {
	return map[string]any{
		"attachment_id": attachment["id"],
		"name":          attachment["name"],
		"content_type":  attachment["contentType"],
		"size_bytes":    attachment["size"],
	}
}

func mapAttachments(entries any) []map[string]any {
	raw, ok := entries.([]any)
	if !ok {
		return []map[string]any{}
	}
	attachments := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			attachments = append(attachments, mapAttachment(item))
		}
	}
	return attachments
}
