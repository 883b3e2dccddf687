// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"

	"github.com/stacklok/graphmcp/pkg/cache"
	"github.com/stacklok/graphmcp/pkg/tools"
)

// registerTools assembles the complete tool table.
func (s *Server) registerTools() {
	s.registerAuthTools()
	s.registerSystemTools()
	s.registerMailTools()
	s.registerCalendarTools()
	s.registerDriveTools()
}

type beginPKCEArgs struct {
	Scopes      []string `json:"scopes"`
	RedirectURI string   `json:"redirect_uri"`
	LoginHint   string   `json:"login_hint"`
	sessionArgs
}

type completePKCEArgs struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
	sessionArgs
}

func (s *Server) registerAuthTools() {
	s.registry.Register(Tool{
		Name:        "auth_begin_pkce",
		Description: "Start a PKCE authorization flow and return the authorize URL",
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args, err := decodeArgs[beginPKCEArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			if _, err := s.resolver.RequireClientToken(ctx, args.bearer(ctx)); err != nil {
				return nil, err
			}
			return s.authService.BeginPKCE(ctx, args.Scopes, args.RedirectURI, args.LoginHint)
		},
	})

	s.registry.Register(Tool{
		Name:        "auth_complete_pkce",
		Description: "Complete a PKCE authorization flow and mint a session",
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args, err := decodeArgs[completePKCEArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			if _, err := s.resolver.RequireClientToken(ctx, args.bearer(ctx)); err != nil {
				return nil, err
			}
			return s.authService.CompletePKCE(ctx, args.Code, args.State, args.RedirectURI)
		},
	})

	s.registry.Register(Tool{
		Name:        "auth_get_status",
		Description: "Report whether a session is live and what it was granted",
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args, err := decodeArgs[sessionArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			record, err := s.resolver.Resolve(ctx, args.sessionID(), args.bearer(ctx))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"authenticated":  true,
				"granted_scopes": record.Scopes,
				"expires_at":     record.ExpiresAt,
			}, nil
		},
	})

	s.registry.Register(Tool{
		Name:        "auth_logout",
		Description: "Revoke a session",
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args, err := decodeArgs[sessionArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			record, err := s.resolver.Resolve(ctx, args.sessionID(), args.bearer(ctx))
			if err != nil {
				return nil, err
			}
			if err := s.authService.Logout(ctx, record.SessionID); err != nil {
				return nil, err
			}
			return map[string]any{"status": "logged_out"}, nil
		},
	})
}

func (s *Server) registerSystemTools() {
	s.registry.Register(Tool{
		Name:        "system_health",
		Description: "Liveness probe",
		Handler: func(_ context.Context, _ json.RawMessage) (any, error) {
			return map[string]any{"status": "ok"}, nil
		},
	})

	s.registry.Register(Tool{
		Name:        "system_whoami",
		Description: "Echo the validated caller claims",
		Handler: func(ctx context.Context, rawArgs json.RawMessage) (any, error) {
			args, err := decodeArgs[sessionArgs](rawArgs)
			if err != nil {
				return nil, err
			}
			if s.cfg.DisableOIDCValidation {
				return map[string]any{"claims": map[string]any{}, "validation": "disabled"}, nil
			}
			claims, err := s.resolver.RequireClientToken(ctx, args.bearer(ctx))
			if err != nil {
				return nil, err
			}
			return map[string]any{"claims": claims}, nil
		},
	})

	register(s, "system_get_profile", "Fetch the signed-in user's profile",
		func(ctx context.Context, _ cache.SessionRecord, token string, _ sessionArgs) (any, error) {
			return s.platform.GetProfile(ctx, token)
		})
}

func (s *Server) registerMailTools() {
	register(s, "mail_list_folders", "List mail folders",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.ListFoldersArgs) (any, error) {
			return s.mail.ListFolders(ctx, token, args)
		})
	register(s, "mail_list_messages", "List messages",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.ListMessagesArgs) (any, error) {
			return s.mail.ListMessages(ctx, token, args)
		})
	register(s, "mail_get_message", "Fetch a message",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.GetMessageArgs) (any, error) {
			return s.mail.GetMessage(ctx, token, args)
		})
	register(s, "mail_search_messages", "Search messages",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.SearchMessagesArgs) (any, error) {
			return s.mail.SearchMessages(ctx, token, args)
		})

	registerIdempotent(s, "mail_create_draft", "Create a draft message",
		func(args tools.CreateDraftArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.CreateDraftArgs) (any, error) {
			return s.mail.CreateDraft(ctx, token, args)
		})
	registerIdempotent(s, "mail_send_draft", "Send a draft message",
		func(args tools.SendDraftArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.SendDraftArgs) (any, error) {
			return s.mail.SendDraft(ctx, token, args)
		})
	registerIdempotent(s, "mail_reply", "Reply to a message",
		func(args tools.ReplyArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.ReplyArgs) (any, error) {
			return s.mail.Reply(ctx, token, args)
		})

	register(s, "mail_mark_read", "Set a message's read flag",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.MarkReadArgs) (any, error) {
			return s.mail.MarkRead(ctx, token, args)
		})
	register(s, "mail_move_message", "Move a message between folders",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.MoveMessageArgs) (any, error) {
			return s.mail.MoveMessage(ctx, token, args)
		})
	register(s, "mail_get_attachment", "Fetch an attachment",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.GetAttachmentArgs) (any, error) {
			return s.mail.GetAttachment(ctx, token, args)
		})
}

func (s *Server) registerCalendarTools() {
	register(s, "calendar_list_calendars", "List calendars",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.ListCalendarsArgs) (any, error) {
			return s.calendar.ListCalendars(ctx, token, args)
		})
	register(s, "calendar_list_events", "List events in a window",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.ListEventsArgs) (any, error) {
			return s.calendar.ListEvents(ctx, token, args)
		})
	register(s, "calendar_get_event", "Fetch an event",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.GetEventArgs) (any, error) {
			return s.calendar.GetEvent(ctx, token, args)
		})

	registerIdempotent(s, "calendar_create_event", "Create an event",
		func(args tools.CreateEventArgs) string { return args.TransactionID },
		func(ctx context.Context, token string, args tools.CreateEventArgs) (any, error) {
			return s.calendar.CreateEvent(ctx, token, args)
		})
	registerIdempotent(s, "calendar_update_event", "Patch an event",
		func(args tools.UpdateEventArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.UpdateEventArgs) (any, error) {
			return s.calendar.UpdateEvent(ctx, token, args)
		})

	register(s, "calendar_delete_event", "Delete an event",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.DeleteEventArgs) (any, error) {
			return s.calendar.DeleteEvent(ctx, token, args)
		})

	registerIdempotent(s, "calendar_respond_to_invite", "Respond to an invite",
		func(args tools.RespondToInviteArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.RespondToInviteArgs) (any, error) {
			return s.calendar.RespondToInvite(ctx, token, args)
		})

	register(s, "calendar_find_availability", "Query attendee free/busy slots",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.FindAvailabilityArgs) (any, error) {
			return s.calendar.FindAvailability(ctx, token, args)
		})
}

func (s *Server) registerDriveTools() {
	register(s, "drive_get_default", "Fetch the default drive",
		func(ctx context.Context, _ cache.SessionRecord, token string, _ sessionArgs) (any, error) {
			return s.drive.GetDefaultDrive(ctx, token)
		})
	register(s, "drive_list_children", "List a drive item's children",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.ListChildrenArgs) (any, error) {
			return s.drive.ListChildren(ctx, token, args)
		})
	register(s, "drive_get_item", "Fetch a drive item",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.GetItemArgs) (any, error) {
			return s.drive.GetItem(ctx, token, args)
		})
	register(s, "drive_search", "Search the drive",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.SearchArgs) (any, error) {
			return s.drive.Search(ctx, token, args)
		})
	register(s, "drive_download_file", "Download file content or a download URL",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.DownloadFileArgs) (any, error) {
			return s.drive.DownloadFile(ctx, token, args)
		})

	registerIdempotent(s, "drive_upload_small_file", "Upload a small file",
		func(args tools.UploadSmallFileArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.UploadSmallFileArgs) (any, error) {
			return s.drive.UploadSmallFile(ctx, token, args)
		})
	registerIdempotent(s, "drive_create_upload_session", "Open a resumable upload session",
		func(args tools.CreateUploadSessionArgs) string { return args.IdempotencyKey },
		func(ctx context.Context, token string, args tools.CreateUploadSessionArgs) (any, error) {
			return s.drive.CreateUploadSession(ctx, token, args)
		})

	register(s, "drive_upload_chunk", "Upload one range of a resumable session",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.UploadChunkArgs) (any, error) {
			return s.drive.UploadChunk(ctx, token, args)
		})
	register(s, "drive_create_folder", "Create a folder",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.CreateFolderArgs) (any, error) {
			return s.drive.CreateFolder(ctx, token, args)
		})
	register(s, "drive_delete_item", "Delete a drive item",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.DeleteItemArgs) (any, error) {
			return s.drive.DeleteItem(ctx, token, args)
		})
	register(s, "drive_share_create_link", "Create a sharing link",
		func(ctx context.Context, _ cache.SessionRecord, token string, args tools.CreateShareLinkArgs) (any, error) {
			return s.drive.CreateShareLink(ctx, token, args)
		})
}
