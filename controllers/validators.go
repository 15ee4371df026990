package controllers

import (
	"civicfeed-be/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators installs the enum validators used by the binding
// tags on request bodies. Call once before serving (and from handler
// tests).
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("issuecategory", func(fl validator.FieldLevel) bool {
		return models.IssueCategory(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("issuepriority", func(fl validator.FieldLevel) bool {
		return models.IssuePriority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("issuestatus", func(fl validator.FieldLevel) bool {
		return models.IssueStatus(fl.Field().String()).Valid()
	})
}
