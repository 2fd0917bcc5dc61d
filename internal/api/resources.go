package api

import (
	"context"
	"net/http"
	"net/url"
)

type NodeResponse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	ParentID string `json:"parent_id,omitempty"`
}

type StudyResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type StudyVersionResponse struct {
	Version   int    `json:"version"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

type ShareResponse struct {
	NodeID string `json:"node_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type ExportJobResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Progress    int    `json:"progress,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

func (c *Client) CreateNode(ctx context.Context, nodeType, title, parentID string) (NodeResponse, error) {
	body := map[string]any{
		"type":  nodeType,
		"title": title,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var out NodeResponse
	err := c.Request(ctx, http.MethodPost, "/v1/nodes", body, &out)
	return out, err
}

func (c *Client) MoveNode(ctx context.Context, nodeID, newParentID string) error {
	return c.Request(ctx, http.MethodPatch, "/v1/nodes/"+url.PathEscape(nodeID)+"/move", map[string]any{
		"parent_id": newParentID,
	}, nil)
}

func (c *Client) DeleteNode(ctx context.Context, nodeID string) error {
	return c.Request(ctx, http.MethodDelete, "/v1/nodes/"+url.PathEscape(nodeID), nil, nil)
}

func (c *Client) UpdateLayout(ctx context.Context, layouts map[string]map[string]float64) error {
	return c.Request(ctx, http.MethodPut, "/v1/nodes/layout", map[string]any{
		"layout": layouts,
	}, nil)
}

func (c *Client) ShareNode(ctx context.Context, nodeID, userID, role string) (ShareResponse, error) {
	var out ShareResponse
	err := c.Request(ctx, http.MethodPost, "/v1/nodes/"+url.PathEscape(nodeID)+"/share", map[string]any{
		"user_id": userID,
		"role":    role,
	}, &out)
	return out, err
}

func (c *Client) CreateStudy(ctx context.Context, title, parentID string) (StudyResponse, error) {
	body := map[string]any{"title": title}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var out StudyResponse
	err := c.Request(ctx, http.MethodPost, "/v1/studies", body, &out)
	return out, err
}

func (c *Client) SaveStudyVersion(ctx context.Context, studyID, summary string) (StudyVersionResponse, error) {
	var out StudyVersionResponse
	err := c.Request(ctx, http.MethodPost, "/v1/studies/"+url.PathEscape(studyID)+"/versions", map[string]any{
		"summary": summary,
	}, &out)
	return out, err
}

func (c *Client) CreateExportJob(ctx context.Context, studyID, format string) (ExportJobResponse, error) {
	var out ExportJobResponse
	err := c.Request(ctx, http.MethodPost, "/v1/exports", map[string]any{
		"study_id": studyID,
		"format":   format,
	}, &out)
	return out, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, notificationID string) error {
	return c.Request(ctx, http.MethodPost, "/v1/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil)
}
