// Package attachment implements the presign/commit upload flow. Clients talk
// to object storage directly; the server only brokers URLs and records.
package attachment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/store"
)

const (
	maxAttachmentSizeBytes = 100 * 1024 * 1024
	presignTTL             = 900 * time.Second
	downloadTTL            = 600 * time.Second
)

// PresignRequest starts an upload.
type PresignRequest struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

// PresignResponse carries the URL the client uploads to.
type PresignResponse struct {
	UploadID  uuid.UUID `json:"upload_id"`
	UploadURL string    `json:"upload_url"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	ExpiresAt int64     `json:"expires_at"`
}

// GetResponse pairs an attachment record with a short-lived download URL.
type GetResponse struct {
	Attachment  store.Attachment `json:"attachment"`
	DownloadURL string           `json:"download_url"`
	ExpiresAt   int64            `json:"expires_at"`
}

// Service brokers presigned uploads and downloads. presigner is nil when no
// object storage is configured; local URLs are synthesized instead.
type Service struct {
	store     *store.Store
	channels  *channel.Service
	presigner Presigner
	log       zerolog.Logger
}

func NewService(st *store.Store, channels *channel.Service, presigner Presigner, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		channels:  channels,
		presigner: presigner,
		log:       logger.With().Str("component", "attachment").Logger(),
	}
}

// Presign validates the upload metadata, reserves a pending upload, and
// returns the URL to PUT the bytes to. The pending record expires after 15
// minutes and is consumed by exactly one commit.
func (s *Service) Presign(ctx context.Context, actor auth.Context, req PresignRequest) (PresignResponse, error) {
	filename := trimmed(req.Filename)
	contentType := trimmed(req.ContentType)
	if filename == "" {
		return PresignResponse{}, apperr.BadRequest("filename is required")
	}
	if contentType == "" {
		return PresignResponse{}, apperr.BadRequest("content_type is required")
	}
	if req.SizeBytes <= 0 {
		return PresignResponse{}, apperr.BadRequest("size_bytes must be > 0")
	}
	if req.SizeBytes > maxAttachmentSizeBytes {
		return PresignResponse{}, apperr.BadRequest("file size exceeds 100MB limit")
	}
	if err := s.channels.EnsureChannelAccess(ctx, actor, req.ChannelID); err != nil {
		return PresignResponse{}, err
	}

	now := time.Now().Unix()
	uploadID := uuid.New()
	key := StorageKey(actor.WorkspaceID, req.ChannelID, uploadID, filename)

	bucket := localBucket
	uploadURL := localUploadURL(uploadID)
	if s.presigner != nil {
		url, err := s.presigner.PresignUpload(key, presignTTL)
		if err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("Failed to presign upload URL")
			return PresignResponse{}, apperr.Internal("failed to presign upload url")
		}
		bucket = s.presigner.Bucket()
		uploadURL = url
	}

	expiresAt := now + int64(presignTTL/time.Second)
	s.store.PutPendingUpload(ctx, store.PendingUpload{
		UploadID:    uploadID,
		WorkspaceID: actor.WorkspaceID,
		ChannelID:   req.ChannelID,
		UploaderID:  actor.UserID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
		StorageKey:  key,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	})

	return PresignResponse{
		UploadID:  uploadID,
		UploadURL: uploadURL,
		Bucket:    bucket,
		Key:       key,
		ExpiresAt: expiresAt,
	}, nil
}

// Commit consumes a pending upload and records the attachment. A second
// commit of the same upload_id fails: the take is single-consumer.
func (s *Service) Commit(ctx context.Context, actor auth.Context, uploadID uuid.UUID, messageID *uuid.UUID) (store.Attachment, error) {
	now := time.Now().Unix()

	pending, ok := s.store.TakePendingUpload(ctx, uploadID)
	if !ok {
		return store.Attachment{}, apperr.NotFound("upload_id not found or already committed")
	}
	if pending.WorkspaceID != actor.WorkspaceID {
		return store.Attachment{}, apperr.NotFound("upload_id not found")
	}
	if pending.UploaderID != actor.UserID {
		return store.Attachment{}, apperr.Unauthorized("cannot commit upload from another user")
	}
	if pending.ExpiresAt < now {
		return store.Attachment{}, apperr.BadRequest("presigned upload has expired")
	}

	bucket, region := localBucket, localRegion
	if s.presigner != nil {
		bucket, region = s.presigner.Bucket(), s.presigner.Region()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return store.Attachment{}, apperr.Internal("failed to allocate attachment id")
	}
	attachment := store.Attachment{
		ID:          id,
		WorkspaceID: pending.WorkspaceID,
		ChannelID:   pending.ChannelID,
		MessageID:   messageID,
		UploaderID:  pending.UploaderID,
		Filename:    pending.Filename,
		ContentType: pending.ContentType,
		SizeBytes:   pending.SizeBytes,
		Bucket:      bucket,
		Key:         pending.StorageKey,
		Region:      region,
		CreatedAt:   pending.CreatedAt,
	}
	s.store.PutAttachment(ctx, attachment)
	return attachment, nil
}

// Get resolves an attachment in the actor's workspace and mints a download
// URL valid for ten minutes.
func (s *Service) Get(ctx context.Context, workspaceID, attachmentID uuid.UUID) (GetResponse, error) {
	attachment, ok := s.store.GetAttachment(ctx, attachmentID)
	if !ok || attachment.WorkspaceID != workspaceID {
		return GetResponse{}, apperr.NotFound("attachment not found")
	}

	expiresAt := time.Now().Unix() + int64(downloadTTL/time.Second)
	downloadURL := localDownloadURL(attachment.Bucket, attachment.ID, expiresAt)
	if s.presigner != nil {
		url, err := s.presigner.PresignDownload(attachment.Key, downloadTTL)
		if err != nil {
			s.log.Error().Err(err).Str("key", attachment.Key).Msg("Failed to presign download URL")
			return GetResponse{}, apperr.Internal("failed to presign download url")
		}
		downloadURL = url
	}

	return GetResponse{
		Attachment:  attachment,
		DownloadURL: downloadURL,
		ExpiresAt:   expiresAt,
	}, nil
}
