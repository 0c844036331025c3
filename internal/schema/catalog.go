package schema

import "spacenet/pkg/domain"

func nodeBase() []FieldSpec {
	return []FieldSpec{
		String("name").Titled("Name", "name of the node"),
		String("description").Titled("Description", "short description of the node"),
		Enum("body_1", domain.Bodies()...).Titled("Body 1", "Body of surface location, body of orbit, or body of major Lagrange point"),
	}
}

func edgeBase() []FieldSpec {
	return []FieldSpec{
		String("name").Titled("Name", "name of the edge"),
		String("description").Titled("Description", "short description of the edge"),
		Integer("origin_id").AtLeast(1).Titled("Origin ID", "node the edge starts from"),
		Integer("destination_id").AtLeast(1).Titled("Destination ID", "node the edge ends at"),
	}
}

func classOfSupply() FieldSpec {
	return Integer("class_of_supply").Between(domain.ClassOfSupplyMin, domain.ClassOfSupplyMax).
		Titled("Class of Supply", "SpaceNet class of supply, 0 when unassigned")
}

func elementBase() []FieldSpec {
	return []FieldSpec{
		String("name").Titled("Name", "name of the element"),
		String("description").Titled("Description", "short description of the element"),
		classOfSupply(),
		Enum("environment", domain.Environments()...).Titled("Environment", "environment the element requires"),
		Float("accommodation_mass").AtLeast(0).Titled("Accommodation Mass", "mass of accommodation for the element"),
		Float("mass").AtLeast(0).Titled("Mass", "mass of the element"),
		Float("volume").AtLeast(0).Titled("Volume", "volume of the element"),
	}
}

func cargoFields() []FieldSpec {
	return []FieldSpec{
		Float("max_cargo_mass").AtLeast(0).OrNull().Titled("Max Cargo Mass", "cargo mass capacity"),
		Float("max_cargo_volume").AtLeast(0).OrNull().Titled("Max Cargo Volume", "cargo volume capacity"),
	}
}

func vehicleFields() []FieldSpec {
	return append(cargoFields(),
		Integer("max_crew").AtLeast(0).Titled("Max Crew", "crew capacity"),
		Float("max_fuel").AtLeast(0).Titled("Max Fuel", "fuel capacity"),
	)
}

func agentFields() []FieldSpec {
	return []FieldSpec{
		Float("active_time_fraction").Between(0, 1).Titled("Active Time Fraction", "fraction of time the agent is active"),
	}
}

func resourceBase() []FieldSpec {
	return []FieldSpec{
		String("name").Titled("Name", "name of the resource"),
		String("description").Titled("Description", "short description of the resource"),
		classOfSupply(),
		String("units").Titled("Units", "units the resource is counted in"),
	}
}

func concat(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Catalog returns the canonical definitions of every SpaceNet variant.
func Catalog() []VariantDefinition {
	seq, ident := domain.IdentitySequence, domain.IdentityUUID
	return []VariantDefinition{
		NewVariant(domain.KindNode, domain.NodeSurface, "SurfaceNode", seq, concat(nodeBase(), []FieldSpec{
			Float("latitude").Between(-90, 90).Titled("Latitude", "Latitude (decimal degrees)"),
			Float("longitude").Between(-180, 180).Titled("Longitude", "Longitude (decimal degrees)"),
		})...),
		NewVariant(domain.KindNode, domain.NodeOrbital, "OrbitalNode", seq, concat(nodeBase(), []FieldSpec{
			Float("apoapsis").AtLeast(0).Titled("Apoapsis", "Major radius of orbit"),
			Float("periapsis").AtLeast(0).Titled("Periapsis", "Minor radius of orbit"),
			Float("inclination").Between(0, 90).Titled("Inclination", "Inclination of orbit"),
		})...),
		NewVariant(domain.KindNode, domain.NodeLagrange, "LagrangeNode", seq, concat(nodeBase(), []FieldSpec{
			Enum("body_2", domain.Bodies()...).Titled("Body 2", "Minor body of Lagrange node"),
			Integer("lp_number").Between(1, 5).Titled("LP Number", "Number of Lagrange point"),
		})...),

		NewVariant(domain.KindEdge, domain.EdgeSurface, "SurfaceEdge", seq, concat(edgeBase(), []FieldSpec{
			Float("distance").AtLeast(0).Titled("Distance", "surface distance between the nodes"),
		})...),
		NewVariant(domain.KindEdge, domain.EdgeSpace, "SpaceEdge", seq, concat(edgeBase(), []FieldSpec{
			Float("duration").AtLeast(0).Titled("Duration", "transit duration"),
		})...),
		NewVariant(domain.KindEdge, domain.EdgeFlight, "FlightEdge", seq, concat(edgeBase(), []FieldSpec{
			Float("duration").AtLeast(0).Titled("Duration", "flight duration"),
			Integer("max_crew").AtLeast(0).Titled("Max Crew", "crew capacity of the flight"),
			Float("max_cargo").AtLeast(0).Titled("Max Cargo", "cargo capacity of the flight"),
		})...),

		NewVariant(domain.KindElement, domain.ElementPlain, "Element", ident, elementBase()...),
		NewVariant(domain.KindElement, domain.ElementResourceContainer, "ResourceContainer", ident,
			concat(elementBase(), cargoFields())...),
		NewVariant(domain.KindElement, domain.ElementCarrier, "ElementCarrier", ident, concat(elementBase(), cargoFields(), []FieldSpec{
			Enum("cargo_environment", domain.Environments()...).Titled("Cargo Environment", "environment provided to cargo"),
		})...),
		NewVariant(domain.KindElement, domain.ElementHumanAgent, "HumanAgent", ident, concat(elementBase(), agentFields())...),
		NewVariant(domain.KindElement, domain.ElementRoboticAgent, "RoboticAgent", ident, concat(elementBase(), agentFields())...),
		NewVariant(domain.KindElement, domain.ElementSurfaceVehicle, "SurfaceVehicle", ident, concat(elementBase(), vehicleFields(), []FieldSpec{
			Float("max_speed").AtLeast(0).Titled("Max Speed", "maximum surface speed"),
			Integer("fuel_id").Titled("Fuel ID", "resource used as fuel"),
		})...),
		NewVariant(domain.KindElement, domain.ElementPropulsiveVehicle, "PropulsiveVehicle", ident, concat(elementBase(), vehicleFields(), []FieldSpec{
			Float("isp").AtLeast(0).Titled("ISP", "specific impulse"),
			Integer("propellant_id").Titled("Propellant ID", "resource used as propellant"),
		})...),

		NewVariant(domain.KindResource, domain.ResourceContinuous, "ContinuousResource", seq, concat(resourceBase(), []FieldSpec{
			Float("unit_mass").AtLeast(0).Titled("Unit Mass", "mass per unit"),
			Float("unit_volume").AtLeast(0).Titled("Unit Volume", "volume per unit"),
		})...),
		NewVariant(domain.KindResource, domain.ResourceDiscrete, "DiscreteResource", seq, concat(resourceBase(), []FieldSpec{
			Integer("unit_mass").AtLeast(0).Titled("Unit Mass", "mass per unit"),
			Integer("unit_volume").AtLeast(0).Titled("Unit Volume", "volume per unit"),
		})...),
	}
}

// NewCatalogRegistry builds a registry holding the full catalog.
func NewCatalogRegistry() (*Registry, error) {
	reg := NewRegistry()
	for _, def := range Catalog() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
