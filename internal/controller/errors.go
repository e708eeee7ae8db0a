package controller

import "errors"

var (
	// ErrUnsupportedController is returned for a controller type with no implementation.
	ErrUnsupportedController = errors.New("controller: unsupported controller")

	// ErrUnsupportedEncoding is returned when the controller cannot send the
	// definition's commands encoding.
	ErrUnsupportedEncoding = errors.New("controller: unsupported commands encoding")

	// ErrMissingTopic is returned when the MQTT controller has no topic.
	ErrMissingTopic = errors.New("controller: controller_data topic is required")
)
