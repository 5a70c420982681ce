// Package permission models the authorizations a recorder needs before it
// can start and the registry of adaptors that answer for them.
package permission

import (
	"fmt"
)

// Type identifies a permission.
type Type string

const (
	Camera            Type = "camera"
	LocationWhenInUse Type = "locationWhenInUse"
	Location          Type = "location"
	Microphone        Type = "microphone"
	Motion            Type = "motion"
	PhotoLibrary      Type = "photoLibrary"
	Notifications     Type = "notifications"
	Weather           Type = "weather"
)

// Status is the authorization state of a permission.
type Status int

const (
	Authorized Status = iota
	NotDetermined
	Restricted
	Denied
	// PreviouslyDenied is reported when a permission was denied in an
	// earlier run and the host cannot prompt again.
	PreviouslyDenied
)

var statusNames = map[Status]string{
	Authorized:       "authorized",
	NotDetermined:    "notDetermined",
	Restricted:       "restricted",
	Denied:           "denied",
	PreviouslyDenied: "previouslyDenied",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsDenied reports whether the status blocks the recorder.
func (s Status) IsDenied() bool {
	return s != Authorized && s != NotDetermined
}

// Permission describes a permission a recorder asks for.
type Permission interface {
	Identifier() Type
	IsOptional() bool
	RequestIfNeeded() bool
	DeniedMessage() string
	RestrictedMessage() string
}

// StandardPermission is the default Permission implementation.
type StandardPermission struct {
	PermissionType     Type   `json:"permissionType" mapstructure:"permissionType" validate:"required"`
	DeniedText         string `json:"deniedMessage,omitempty" mapstructure:"deniedMessage"`
	RestrictedText     string `json:"restrictedMessage,omitempty" mapstructure:"restrictedMessage"`
	Optional           bool   `json:"optional,omitempty" mapstructure:"optional"`
	RequestIfNeededRaw *bool  `json:"requestIfNeeded,omitempty" mapstructure:"requestIfNeeded"`
}

// NewStandardPermission returns the permission with default messages.
func NewStandardPermission(t Type) StandardPermission {
	return StandardPermission{PermissionType: t}
}

func (p StandardPermission) Identifier() Type { return p.PermissionType }

func (p StandardPermission) IsOptional() bool { return p.Optional }

func (p StandardPermission) RequestIfNeeded() bool {
	if p.RequestIfNeededRaw == nil {
		return true
	}
	return *p.RequestIfNeededRaw
}

func (p StandardPermission) DeniedMessage() string {
	if p.DeniedText != "" {
		return p.DeniedText
	}
	switch p.PermissionType {
	case Camera:
		return "You have not given this app permission to use the camera. You can enable access by turning on 'Camera' in the Privacy Settings."
	case Location:
		return "You have not given this app permission to use your location in the background. You can enable access by selecting 'Always' for Location in the Privacy Settings."
	case LocationWhenInUse, Weather:
		return "You have not given this app permission to use your location. You can enable access by turning on 'Location Services' in the Privacy Settings."
	case Microphone:
		return "You have not given this app permission to use the microphone. You can enable access by turning on 'Microphone' in the Privacy Settings."
	case Motion:
		return "You have not given this app permission to use the motion and fitness sensors. You can enable access by turning on 'Motion & Fitness' in the Privacy Settings."
	case PhotoLibrary:
		return "You have not given this app permission to use the photo library. You can enable access by turning on 'Photos' in the Privacy Settings."
	case Notifications:
		return "You have not given this app permission to send notifications. You can enable access by turning on 'Notifications' in the Settings."
	default:
		return ""
	}
}

func (p StandardPermission) RestrictedMessage() string {
	if p.RestrictedText != "" {
		return p.RestrictedText
	}
	switch p.PermissionType {
	case Camera:
		return "Your access to the camera is restricted."
	case Location, LocationWhenInUse, Weather:
		return "Your access to location services is restricted."
	case Microphone:
		return "Your access to the microphone is restricted."
	case PhotoLibrary:
		return "Your access to the photo library is restricted."
	default:
		return "Your access to this feature is restricted."
	}
}

// Message returns the text to show for status, or "" when nothing blocks.
func Message(p Permission, status Status) string {
	switch status {
	case Denied, PreviouslyDenied:
		return p.DeniedMessage()
	case Restricted:
		return p.RestrictedMessage()
	default:
		return ""
	}
}

// ErrorKind classifies permission failures.
type ErrorKind int

const (
	NotAuthorized ErrorKind = iota
	NotHandled
)

// Error reports a permission that blocks a recorder.
type Error struct {
	Kind       ErrorKind
	Permission Permission
	Status     Status
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Permission != nil {
		if msg := Message(e.Permission, e.Status); msg != "" {
			return msg
		}
		return fmt.Sprintf("%s: %s", e.Permission.Identifier(), e.Status)
	}
	return e.Status.String()
}

// NotAuthorizedError builds the error for a denied or restricted permission.
func NotAuthorizedError(p Permission, status Status) *Error {
	return &Error{Kind: NotAuthorized, Permission: p, Status: status}
}
