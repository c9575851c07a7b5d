package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiClient is a thin REST client for the code search service.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(baseURL, userID string) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	if userID != "" {
		c.SetHeader("X-User-ID", userID)
	}
	return &apiClient{http: c}
}

type apiError struct {
	Status  int
	Message string
	Details map[string]interface{}
}

func (e *apiError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("http %d: %s %v", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// do sends the request and returns the raw JSON body of a 2xx response.
func (c *apiClient) do(ctx context.Context, method, path string, query map[string]string, body interface{}) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		var er struct {
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		}
		_ = json.Unmarshal(resp.Body(), &er)
		if er.Message == "" {
			er.Message = resp.String()
		}
		return nil, &apiError{Status: resp.StatusCode(), Message: er.Message, Details: er.Details}
	}
	return resp.Body(), nil
}
