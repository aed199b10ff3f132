package sqapi

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// SystemStatus returns the server state, "UP" once it accepts analyses.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.call(ctx, http.MethodGet, "/api/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateProject provisions a project. An existing key yields a validation error.
func (c *Client) CreateProject(ctx context.Context, name, key string) error {
	return c.call(ctx, http.MethodPost, "/api/projects/create", map[string]string{
		"name":    name,
		"project": key,
	}, nil)
}

// RestoreProfile uploads a profile backup document. A profile with the same
// name and language is overwritten.
func (c *Client) RestoreProfile(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx)
	if err != nil {
		return err
	}
	req.SetFile("backup", path)
	if err := c.execute(req, http.MethodPost, "/api/qualityprofiles/restore"); err != nil {
		return fmt.Errorf("restore %s: %w", filepath.Base(path), err)
	}
	return nil
}

// AddProjectToProfile associates the project with a profile for one language.
func (c *Client) AddProjectToProfile(ctx context.Context, project, language, profile string) error {
	return c.call(ctx, http.MethodPost, "/api/qualityprofiles/add_project", map[string]string{
		"project":        project,
		"language":       strings.ToLower(language),
		"qualityProfile": profile,
	}, nil)
}

// SetSetting sets a global server setting.
func (c *Client) SetSetting(ctx context.Context, key, value string) error {
	return c.call(ctx, http.MethodPost, "/api/settings/set", map[string]string{
		"key":   key,
		"value": value,
	}, nil)
}

// CETask returns the compute task with the given id.
func (c *Client) CETask(ctx context.Context, id string) (*Task, error) {
	var resp taskResponse
	if err := c.call(ctx, http.MethodPost, "/api/ce/task", map[string]string{"id": id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// SearchIssues pages through /api/issues/search until every issue has been
// read. On error the issues collected so far are returned with it.
func (c *Client) SearchIssues(ctx context.Context, q IssueQuery) ([]Issue, error) {
	params := map[string]string{}
	if len(q.Languages) > 0 {
		params["languages"] = strings.ToLower(strings.Join(q.Languages, ","))
	}
	if q.ComponentKeys != "" {
		params["componentKeys"] = q.ComponentKeys
	}
	if q.Rules != nil {
		params["rules"] = strings.Join(q.Rules, ",")
	}

	var issues []Issue
	page, pageSize, total := 1, 1, 2
	for page*pageSize < total {
		var resp issuesPage
		if err := c.call(ctx, http.MethodPost, "/api/issues/search", params, &resp); err != nil {
			return issues, err
		}
		issues = append(issues, resp.Issues...)
		if resp.Ps <= 0 {
			break
		}
		page, pageSize, total = resp.P, resp.Ps, resp.Total
		params["p"] = strconv.Itoa(page + 1)
	}
	return issues, nil
}

// ShowDuplications returns the duplicated blocks of a file component.
func (c *Client) ShowDuplications(ctx context.Context, key string) (*Duplications, error) {
	var dup Duplications
	if err := c.call(ctx, http.MethodPost, "/api/duplications/show", map[string]string{"key": key}, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// ComponentMeasures returns the requested metrics of a component.
func (c *Client) ComponentMeasures(ctx context.Context, component string, metricKeys []string, additionalFields string) (*ComponentMeasures, error) {
	params := map[string]string{
		"component":  component,
		"metricKeys": strings.Join(metricKeys, ","),
	}
	if additionalFields != "" {
		params["additionalFields"] = additionalFields
	}
	var m ComponentMeasures
	if err := c.call(ctx, http.MethodPost, "/api/measures/component", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
