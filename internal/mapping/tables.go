package mapping

// createToUpdate pairs every create shape with its update shape. The names are
// authored by hand rather than computed so that renames stay deliberate; New
// verifies them against the registry.
var createToUpdate = map[string]string{
	"SurfaceNode":  "SurfaceNodeUpdate",
	"OrbitalNode":  "OrbitalNodeUpdate",
	"LagrangeNode": "LagrangeNodeUpdate",

	"SurfaceEdge": "SurfaceEdgeUpdate",
	"SpaceEdge":   "SpaceEdgeUpdate",
	"FlightEdge":  "FlightEdgeUpdate",

	"Element":           "ElementUpdate",
	"ResourceContainer": "ResourceContainerUpdate",
	"ElementCarrier":    "ElementCarrierUpdate",
	"HumanAgent":        "HumanAgentUpdate",
	"RoboticAgent":      "RoboticAgentUpdate",
	"SurfaceVehicle":    "SurfaceVehicleUpdate",
	"PropulsiveVehicle": "PropulsiveVehicleUpdate",

	"ContinuousResource": "ContinuousUpdate",
	"DiscreteResource":   "DiscreteUpdate",
}

// createToRead pairs every create shape with its read shape.
var createToRead = map[string]string{
	"SurfaceNode":  "SurfaceNodeRead",
	"OrbitalNode":  "OrbitalNodeRead",
	"LagrangeNode": "LagrangeNodeRead",

	"SurfaceEdge": "SurfaceEdgeRead",
	"SpaceEdge":   "SpaceEdgeRead",
	"FlightEdge":  "FlightEdgeRead",

	"Element":           "ElementRead",
	"ResourceContainer": "ResourceContainerRead",
	"ElementCarrier":    "ElementCarrierRead",
	"HumanAgent":        "HumanAgentRead",
	"RoboticAgent":      "RoboticAgentRead",
	"SurfaceVehicle":    "SurfaceVehicleRead",
	"PropulsiveVehicle": "PropulsiveVehicleRead",

	"ContinuousResource": "ContinuousRead",
	"DiscreteResource":   "DiscreteRead",
}
