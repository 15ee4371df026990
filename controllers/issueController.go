package controllers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicfeed-be/engine"
	"civicfeed-be/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueController serves the issue feed and social-interaction API over
// an explicitly passed engine handle.
type IssueController struct {
	engine engine.Engine
	log    *slog.Logger
}

func NewIssueController(e engine.Engine, log *slog.Logger) *IssueController {
	return &IssueController{engine: e, log: log}
}

type imageRequest struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Mimetype     string `json:"mimetype"`
	Size         int64  `json:"size"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type createIssueRequest struct {
	Title       string           `json:"title" binding:"required"`
	Description string           `json:"description" binding:"required"`
	Category    string           `json:"category" binding:"required,issuecategory"`
	Priority    string           `json:"priority" binding:"omitempty,issuepriority"`
	Location    *locationRequest `json:"location"`
	Address     string           `json:"address"`
	City        string           `json:"city"`
	State       string           `json:"state"`
	Pincode     string           `json:"pincode"`
	Visibility  string           `json:"visibility" binding:"omitempty,oneof=PUBLIC PRIVATE"`
	Tags        string           `json:"tags"`
	Images      []imageRequest   `json:"images" binding:"max=5"`
}

// CreateIssue handles POST /api/issues.
func (ic *IssueController) CreateIssue(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var input createIssueRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ic.log, engine.NewValidationError("", err.Error()))
		return
	}
	if input.Location == nil || input.Location.Latitude == nil || input.Location.Longitude == nil {
		respondError(c, ic.log, &engine.InvalidLocationError{Message: "location coordinates are required"})
		return
	}

	images := make([]models.ImageRef, 0, len(input.Images))
	for _, img := range input.Images {
		images = append(images, models.ImageRef{
			Filename:     img.Filename,
			OriginalName: img.OriginalName,
			Mimetype:     img.Mimetype,
			Size:         img.Size,
		})
	}

	in := engine.CreateIssueInput{
		Title:       input.Title,
		Description: input.Description,
		Category:    models.IssueCategory(input.Category),
		Priority:    models.IssuePriority(input.Priority),
		Latitude:    *input.Location.Latitude,
		Longitude:   *input.Location.Longitude,
		Address:     input.Address,
		City:        input.City,
		State:       input.State,
		Pincode:     input.Pincode,
		Visibility:  models.Visibility(input.Visibility),
		Tags:        splitTags(input.Tags),
		Images:      images,
	}

	issue, err := ic.engine.CreateIssue(c.Request.Context(), caller, in)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	item := engine.FeedItem{Issue: *issue, IsUserIssue: true}
	if u, err := ic.engine.UserByID(c.Request.Context(), caller.UserID); err == nil {
		item.Reporter = &engine.Reporter{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
	}
	respondData(c, http.StatusCreated, "Issue reported successfully", item)
}

// Feed handles GET /api/issues/feed.
func (ic *IssueController) Feed(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	page, err := positiveIntQuery(c, "page", 1)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	limit, err := positiveIntQuery(c, "limit", engine.DefaultFeedLimit)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	geo, err := geoQuery(c, 50)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	q := engine.FeedQuery{
		Page:            page,
		Limit:           limit,
		Geo:             geo,
		Category:        c.Query("category"),
		IncludeResolved: c.Query("includeResolved") == "true",
	}

	result, err := ic.engine.Feed(c.Request.Context(), caller, q)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	feedInfo := gin.H{
		"radius":          geo.RadiusKm,
		"category":        defaultString(q.Category, "all"),
		"includeResolved": q.IncludeResolved,
	}
	if geo.Enabled() {
		feedInfo["location"] = gin.H{"latitude": *geo.Latitude, "longitude": *geo.Longitude}
	}

	respondData(c, http.StatusOK, "", gin.H{
		"issues":     result.Items,
		"pagination": result.Pagination,
		"feedInfo":   feedInfo,
	})
}

// ListIssues handles GET /api/issues.
func (ic *IssueController) ListIssues(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	page, err := positiveIntQuery(c, "page", 1)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	limit, err := positiveIntQuery(c, "limit", engine.DefaultPageLimit)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	geo, err := geoQuery(c, 10)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	q := engine.ListQuery{
		Page:      page,
		Limit:     limit,
		Category:  c.Query("category"),
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		Geo:       geo,
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		MyIssues:  c.Query("myIssues") == "true",
	}

	result, err := ic.engine.ListIssues(c.Request.Context(), caller, q)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "", gin.H{
		"issues":     result.Items,
		"pagination": result.Pagination,
	})
}

// MyIssues handles GET /api/issues/my.
func (ic *IssueController) MyIssues(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	page, err := positiveIntQuery(c, "page", 1)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	limit, err := positiveIntQuery(c, "limit", engine.DefaultPageLimit)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	q := engine.MyIssuesQuery{
		Page:      page,
		Limit:     limit,
		Status:    c.Query("status"),
		Category:  c.Query("category"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}

	result, err := ic.engine.MyIssues(c.Request.Context(), caller, q)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "", gin.H{
		"issues":     result.Items,
		"pagination": result.Pagination,
	})
}

// GetIssue handles GET /api/issues/:id.
func (ic *IssueController) GetIssue(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	detail, err := ic.engine.GetIssue(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "", detail)
}

type updateIssueRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category" binding:"omitempty,issuecategory"`
	Priority    *string `json:"priority" binding:"omitempty,issuepriority"`
	Visibility  *string `json:"visibility" binding:"omitempty,oneof=PUBLIC PRIVATE"`
	Tags        *string `json:"tags"`
}

// UpdateIssue handles PUT /api/issues/:id.
func (ic *IssueController) UpdateIssue(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	var input updateIssueRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ic.log, engine.NewValidationError("", err.Error()))
		return
	}

	patch := engine.IssuePatch{
		Title:       input.Title,
		Description: input.Description,
	}
	if input.Category != nil {
		cat := models.IssueCategory(*input.Category)
		patch.Category = &cat
	}
	if input.Priority != nil {
		pri := models.IssuePriority(*input.Priority)
		patch.Priority = &pri
	}
	if input.Visibility != nil {
		vis := models.Visibility(*input.Visibility)
		patch.Visibility = &vis
	}
	if input.Tags != nil {
		tags := splitTags(*input.Tags)
		patch.Tags = &tags
	}

	updated, err := ic.engine.UpdateIssue(c.Request.Context(), caller, id, patch)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "Issue updated successfully", updated)
}

type transitionRequest struct {
	Status                  string     `json:"status" binding:"required,issuestatus"`
	AssignedTo              *string    `json:"assignedTo"`
	AdminNotes              *string    `json:"adminNotes"`
	EstimatedResolutionDate *time.Time `json:"estimatedResolutionDate"`
}

// TransitionStatus handles PATCH /api/issues/:id/status.
func (ic *IssueController) TransitionStatus(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	var input transitionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ic.log, engine.NewValidationError("", err.Error()))
		return
	}

	in := engine.TransitionInput{
		Status:                  models.IssueStatus(input.Status),
		AdminNotes:              input.AdminNotes,
		EstimatedResolutionDate: input.EstimatedResolutionDate,
	}
	if input.AssignedTo != nil {
		assignee, err := primitive.ObjectIDFromHex(*input.AssignedTo)
		if err != nil {
			respondError(c, ic.log, engine.NewValidationError("assignedTo", "invalid user ID"))
			return
		}
		in.AssignedTo = &assignee
	}

	updated, err := ic.engine.TransitionStatus(c.Request.Context(), caller, id, in)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "Issue status updated", updated)
}

// DeleteIssue handles DELETE /api/issues/:id.
func (ic *IssueController) DeleteIssue(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	if err := ic.engine.DeleteIssue(c.Request.Context(), caller, id); err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "Issue deleted successfully", nil)
}

// ToggleUpvote handles POST /api/issues/:id/upvote.
func (ic *IssueController) ToggleUpvote(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	result, err := ic.engine.ToggleUpvote(c.Request.Context(), id, caller.UserID)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	message := "Issue upvoted"
	if !result.Upvoted {
		message = "Upvote removed"
	}
	respondData(c, http.StatusOK, message, result)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

// AddComment handles POST /api/issues/:id/comment.
func (ic *IssueController) AddComment(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}
	id, err := issueID(c)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	var input commentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, ic.log, engine.NewValidationError("", err.Error()))
		return
	}

	entry, err := ic.engine.AppendComment(c.Request.Context(), id, caller.UserID, input.Comment)
	if err != nil {
		respondError(c, ic.log, err)
		return
	}

	view := engine.CommentView{Comment: *entry}
	if u, err := ic.engine.UserByID(c.Request.Context(), caller.UserID); err == nil {
		view.Author = &engine.Reporter{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
	}
	respondData(c, http.StatusCreated, "Comment added successfully", view)
}

// Stats handles GET /api/issues/stats/summary.
func (ic *IssueController) Stats(c *gin.Context) {
	if _, ok := callerIdentity(c); !ok {
		return
	}

	stats, err := ic.engine.StatsSummary(c.Request.Context())
	if err != nil {
		respondError(c, ic.log, err)
		return
	}
	respondData(c, http.StatusOK, "", gin.H{
		"summary": gin.H{
			"total":      stats.Total,
			"open":       stats.Open,
			"inProgress": stats.InProgress,
			"resolved":   stats.Resolved,
			"closed":     stats.Closed,
		},
		"categories": stats.Categories,
	})
}

func issueID(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, engine.NewValidationError("id", "invalid issue ID")
	}
	return id, nil
}

// positiveIntQuery parses an integer query parameter, treating absence
// as the default and non-numeric input as a client error.
func positiveIntQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, engine.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// geoQuery assembles the optional radius filter from latitude,
// longitude, and radius parameters.
func geoQuery(c *gin.Context, defaultRadiusKm float64) (engine.GeoFilter, error) {
	latRaw, lonRaw := c.Query("latitude"), c.Query("longitude")
	if latRaw == "" && lonRaw == "" {
		return engine.GeoFilter{RadiusKm: defaultRadiusKm}, nil
	}
	if latRaw == "" || lonRaw == "" {
		return engine.GeoFilter{}, &engine.InvalidLocationError{Message: "latitude and longitude must be provided together"}
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return engine.GeoFilter{}, &engine.InvalidLocationError{Message: "latitude must be a number"}
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return engine.GeoFilter{}, &engine.InvalidLocationError{Message: "longitude must be a number"}
	}

	radius := defaultRadiusKm
	if raw := c.Query("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return engine.GeoFilter{}, &engine.InvalidLocationError{Message: "radius must be a number"}
		}
	}
	return engine.GeoFilter{Latitude: &lat, Longitude: &lon, RadiusKm: radius}, nil
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
