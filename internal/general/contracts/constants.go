package contracts

// Exchanges
const (
	ExchangeDeviceTopic = "device_topic"
	ExchangePetTopic    = "pet_topic"
)

// Queues
const (
	QueueDeviceFixes = "device_fixes"
	QueuePetEvents   = "pet_events"
)

// Routing patterns
const (
	RouteDeviceFixPrefix      = "device.fix."          // {device_id}
	RoutePetMissingPrefix     = "pet.missing."         // {pet_id}
	RoutePetFoundPrefix       = "pet.found."           // {pet_id}
	RoutePetHistoryClearedPfx = "pet.history_cleared." // {pet_id}
)

// Queue binding keys. "#" spans any number of words, so device ids containing dots still route.
const (
	BindDeviceFixes = "device.fix.#"
	BindPetEvents   = "pet.#"
)

// Pet event types
const (
	PetEventMissing        = "pet_missing"
	PetEventFound          = "pet_found"
	PetEventHistoryCleared = "pet_history_cleared"
)
