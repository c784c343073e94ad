package lightbvh

import "github.com/pkg/errors"

var (
	// Returned by Refit when the light collection no longer matches the
	// triangle-to-leaf assignment the tree was built with.
	ErrIncompatibleTopology = errors.New("lightbvh: light collection topology does not match the tree")

	// Returned when binding or sampling a tree that contains no nodes or no flux.
	ErrInvalidBVH = errors.New("lightbvh: tree is not valid")

	// Returned when options fail validation.
	ErrInvalidOptions = errors.New("lightbvh: invalid options")
)
