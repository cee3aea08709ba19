package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kaveh-r/GymAppBack/internal/models"
	"github.com/kaveh-r/GymAppBack/internal/services"
)

// RoomAPI is the HTTP side of the chat backend the engine talks to.
type RoomAPI interface {
	ResolveRoom(ctx context.Context, memberID, trainerID int64) (*models.Conversation, error)
	FetchMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error)
}

// Uploader pushes a binary payload out-of-band and returns the reference the
// message will carry.
type Uploader interface {
	Upload(ctx context.Context, filename, mimeType string, content io.Reader) (*services.StoredFile, error)
}

// APIClient is the REST client for the chat endpoints.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

func (c *APIClient) ResolveRoom(ctx context.Context, memberID, trainerID int64) (*models.Conversation, error) {
	body, err := json.Marshal(map[string]int64{
		"memberId":  memberID,
		"trainerId": trainerID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/room", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoomResolution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRoomResolution, resp.StatusCode)
	}

	var payload struct {
		Conversation *models.Conversation `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoomResolution, err)
	}
	if payload.Conversation == nil {
		return nil, fmt.Errorf("%w: empty response", ErrRoomResolution)
	}
	return payload.Conversation, nil
}

func (c *APIClient) FetchMessages(ctx context.Context, conversationID int64, limit int) ([]models.Message, error) {
	url := fmt.Sprintf("%s/api/v1/chat/messages/%d", c.baseURL, conversationID)
	if limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var payload struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return payload.Messages, nil
}

// FetchRooms returns the caller's conversation summaries for seeding the list.
func (c *APIClient) FetchRooms(ctx context.Context) ([]models.ConversationSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/chat/rooms", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var payload struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return payload.Conversations, nil
}

// FetchPartners returns the counterpart roster that seeds placeholder entries.
func (c *APIClient) FetchPartners(ctx context.Context) ([]models.Participant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/chat/partners", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	var payload struct {
		Partners []models.Participant `json:"partners"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return payload.Partners, nil
}

// Upload sends a multipart payload to the out-of-band upload endpoint. The
// server enforces the type allow-list and the 10 MiB cap; rejections surface
// as ErrUploadRejected before any message referencing the file exists.
func (c *APIClient) Upload(ctx context.Context, filename, mimeType string, content io.Reader) (*services.StoredFile, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUploadRejected, resp.StatusCode)
	}

	var stored services.StoredFile
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadRejected, err)
	}
	return &stored, nil
}

func (c *APIClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}
