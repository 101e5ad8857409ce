package types

// Material defaults used when the host supplies no material or leaves a
// field unset.
const (
	DefaultMaterialName    = "Default"
	DefaultRoughness       = 0.7
	DefaultMetalness       = 0.3
	DefaultIOR             = 1.45
	DefaultNormalStrength  = 1.0
	DefaultAmbientStrength = 0.1
	DefaultLightType       = LightPoint
)

// DefaultMaterial returns the descriptor used for empty material slots.
func DefaultMaterial() MaterialDescriptor {
	return MaterialDescriptor{
		Name:           DefaultMaterialName,
		Type:           MaterialStandard,
		Color:          Vec3{0.8, 0.8, 0.8},
		Roughness:      DefaultRoughness,
		Metalness:      DefaultMetalness,
		Emission:       Vec3{0, 0, 0},
		IOR:            DefaultIOR,
		NormalStrength: DefaultNormalStrength,
	}
}

// DefaultWorld returns the world used when the snapshot has none.
func DefaultWorld() WorldDescriptor {
	return WorldDescriptor{
		BackgroundColor: Vec3{0.05, 0.05, 0.05},
		AmbientColor:    Vec3{1, 1, 1},
		AmbientStrength: DefaultAmbientStrength,
	}
}

// Descriptor overlays m onto DefaultMaterial. Textures are not resolved
// here; the caller fills Textures after asset resolution.
//
// When Type is unset it is derived: positive emission strength gives
// emission, positive transparency gives transparent, otherwise standard.
func (m *Material) Descriptor() MaterialDescriptor {
	d := DefaultMaterial()
	if m == nil {
		return d
	}
	if m.Name != "" {
		d.Name = m.Name
	}
	if m.Color != nil {
		d.Color = *m.Color
	}
	if m.Roughness != nil {
		d.Roughness = *m.Roughness
	}
	if m.Metalness != nil {
		d.Metalness = *m.Metalness
	}
	if m.Emission != nil {
		d.Emission = *m.Emission
	}
	if m.EmissionStrength != nil {
		d.EmissionStrength = *m.EmissionStrength
	}
	if m.Transparency != nil {
		d.Transparency = *m.Transparency
	}
	if m.IOR != nil {
		d.IOR = *m.IOR
	}
	if m.NormalStrength != nil {
		d.NormalStrength = *m.NormalStrength
	}
	if m.Clearcoat != nil && *m.Clearcoat > 0 {
		cc := *m.Clearcoat
		d.Clearcoat = &cc
		if m.ClearcoatRoughness != nil {
			ccr := *m.ClearcoatRoughness
			d.ClearcoatRoughness = &ccr
		}
	}

	switch {
	case m.Type != "":
		d.Type = m.Type
	case d.EmissionStrength > 0:
		d.Type = MaterialEmission
	case d.Transparency > 0:
		d.Type = MaterialTransparent
	default:
		d.Type = MaterialStandard
	}
	return d
}

// Descriptor converts l to its wire form. Type-specific fields are kept
// only for the light types they apply to.
func (l *Light) Descriptor() LightDescriptor {
	d := LightDescriptor{
		Name:     l.Name,
		Type:     l.Type,
		Position: l.Position,
		Rotation: l.Rotation,
		Color:    Vec3{1, 1, 1},
		Energy:   l.Energy,
	}
	switch d.Type {
	case LightSun, LightPoint, LightSpot, LightArea:
	default:
		d.Type = DefaultLightType
	}
	if l.Color != nil {
		d.Color = *l.Color
	}
	switch d.Type {
	case LightSpot:
		d.Angle = l.Angle
		d.Blend = l.Blend
		d.Distance = l.Distance
	case LightArea:
		d.Size = l.Size
	case LightPoint:
		d.Distance = l.Distance
	}
	return d
}

// Descriptor overlays w onto DefaultWorld. A nil world yields the defaults.
func (w *World) Descriptor() WorldDescriptor {
	d := DefaultWorld()
	if w == nil {
		return d
	}
	if w.BackgroundColor != nil {
		d.BackgroundColor = *w.BackgroundColor
	}
	if w.AmbientColor != nil {
		d.AmbientColor = *w.AmbientColor
	}
	if w.AmbientStrength != nil {
		d.AmbientStrength = *w.AmbientStrength
	}
	return d
}
