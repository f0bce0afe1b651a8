package domain

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidID        = errors.New("invalid id")
	ErrCampaignState    = errors.New("invalid campaign state transition")
	ErrCampaignTasks    = errors.New("invalid campaign task list")
	ErrTaskState        = errors.New("invalid task state transition")
	ErrBotState         = errors.New("invalid bot state transition")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrDriverNotFound   = errors.New("driver not found")
	ErrNoGeonames       = errors.New("no geonames selected")
)
