package goalfinder_client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

type updateStatusResponse struct {
	UpdateSuccess bool `json:"updateSuccess"`
}

type isAuthResponse struct {
	IsPasswordProtected bool `json:"isPasswordProtected"`
}

// UploadFirmware streams a firmware image to the device as a multipart
// upload. The request has no client timeout; cancel the context to
// abort the transfer.
func (c *Client) UploadFirmware(ctx context.Context, file io.Reader) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile(UpdateFileField, UpdateFileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+UpdateEndpoint, pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	return nil
}

// UpdateStatus asks the device whether the last firmware update was
// applied. It only answers once the device is back on the network.
func (c *Client) UpdateStatus(ctx context.Context) (bool, error) {
	body, err := c.Get(ctx, UpdateStatusEndpoint)
	if err != nil {
		return false, err
	}

	var status updateStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return false, fmt.Errorf("failed to unmarshal update status response: %w", err)
	}

	return status.UpdateSuccess, nil
}

// IsAuth reports whether the device requires a password.
func (c *Client) IsAuth(ctx context.Context) (bool, error) {
	body, err := c.Get(ctx, IsAuthEndpoint)
	if err != nil {
		return false, err
	}

	var auth isAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return false, fmt.Errorf("failed to unmarshal auth response: %w", err)
	}

	return auth.IsPasswordProtected, nil
}
