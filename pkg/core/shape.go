package core

import "fmt"

// ShapeType is the discriminant the host uses for collision shapes.
type ShapeType int

const (
	ShapeTypeBox      ShapeType = 0
	ShapeTypeSphere   ShapeType = 1
	ShapeTypeCylinder ShapeType = 2
)

// CollisionShape is the collision envelope of the ball or a car.
// It is implemented by Sphere and Box only.
type CollisionShape interface {
	isCollisionShape()
}

// Sphere is a spherical envelope.
type Sphere struct {
	Diameter float64 `json:"diameter"`
}

// Radius returns half the diameter.
func (s Sphere) Radius() float64 { return s.Diameter / 2 }

// Box is an oriented box envelope.
type Box struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (Sphere) isCollisionShape() {}
func (Box) isCollisionShape()    {}

// CollisionShapeRecord is the host wire form: a type field plus one payload per
// variant, of which only the one named by Type is meaningful.
type CollisionShapeRecord struct {
	Type   ShapeType `json:"type"`
	Box    Box       `json:"box"`
	Sphere Sphere    `json:"sphere"`
}

// Shape resolves the record into its variant.
func (r CollisionShapeRecord) Shape() (CollisionShape, error) {
	switch r.Type {
	case ShapeTypeBox:
		return r.Box, nil
	case ShapeTypeSphere:
		return r.Sphere, nil
	default:
		return nil, fmt.Errorf("unsupported collision shape type: %d", r.Type)
	}
}

// ShapeRecord builds the wire form of a shape.
func ShapeRecord(s CollisionShape) CollisionShapeRecord {
	switch v := s.(type) {
	case Sphere:
		return CollisionShapeRecord{Type: ShapeTypeSphere, Sphere: v}
	case Box:
		return CollisionShapeRecord{Type: ShapeTypeBox, Box: v}
	}
	return CollisionShapeRecord{}
}
