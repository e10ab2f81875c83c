// MAVLink messages exchanged between the ground station and the vehicle
package link

// Kind identifies a MAVLink message type handled by the ground station.
type Kind string

const (
	KindHeartbeat     Kind = "HEARTBEAT"
	KindAttitude      Kind = "ATTITUDE"
	KindLocalPosition Kind = "LOCAL_POSITION_NED"
	KindCommandLong   Kind = "COMMAND_LONG"
)

// Message is implemented by every decoded message.
type Message interface {
	Kind() Kind
}

// VehicleType mirrors the MAV_TYPE values used here.
type VehicleType uint8

const (
	VehicleTypeGeneric   VehicleType = 0
	VehicleTypeQuadrotor VehicleType = 2
	VehicleTypeGCS       VehicleType = 6
)

// AutopilotType mirrors the MAV_AUTOPILOT values used here.
type AutopilotType uint8

const (
	AutopilotGeneric   AutopilotType = 0
	AutopilotArduPilot AutopilotType = 3
	AutopilotInvalid   AutopilotType = 8
)

// CommandKind mirrors the MAV_CMD values issued by the correction loop.
type CommandKind uint16

const (
	CommandConditionChangeAlt CommandKind = 113
	CommandConditionYaw       CommandKind = 115
)

func (c CommandKind) String() string {
	switch c {
	case CommandConditionChangeAlt:
		return "MAV_CMD_CONDITION_CHANGE_ALT"
	case CommandConditionYaw:
		return "MAV_CMD_CONDITION_YAW"
	default:
		return "MAV_CMD_UNKNOWN"
	}
}

// Heartbeat is the liveness message. SystemID and ComponentID are filled in
// on receive with the sender's address.
type Heartbeat struct {
	SystemID     uint8
	ComponentID  uint8
	Type         VehicleType
	Autopilot    AutopilotType
	BaseMode     uint8
	CustomMode   uint32
	SystemStatus uint8
}

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// Attitude carries orientation in radians and angular rates in rad/s.
type Attitude struct {
	TimeBootMs uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

func (Attitude) Kind() Kind { return KindAttitude }

// LocalPosition carries position in meters and velocity in m/s in the local frame.
type LocalPosition struct {
	TimeBootMs uint32
	X          float32
	Y          float32
	Z          float32
	VX         float32
	VY         float32
	VZ         float32
}

func (LocalPosition) Kind() Kind { return KindLocalPosition }

// CommandLong is a COMMAND_LONG with seven float parameters.
type CommandLong struct {
	TargetSystem    uint8
	TargetComponent uint8
	Command         CommandKind
	Confirmation    uint8
	Params          [7]float32
}

func (CommandLong) Kind() Kind { return KindCommandLong }
