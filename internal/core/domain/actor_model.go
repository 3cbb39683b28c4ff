package domain

import "github.com/DeviationLabs/homely-vibes/pkg/powerwall"

const (
	ACTOR_ID_MASTER          = "master"
	ACTOR_ID_POWERWALL       = "powerwall"
	ACTOR_ID_MQTT            = "mqtt"
	ACTOR_ID_RESERVE_CONTROL = "reserve_control"
	ACTOR_ID_HA_DISCOVERY    = "hadiscovery"
)

type GetSiteInfoRequest struct {
	ActorRequestMixIn
}

type GetSiteInfoResponse struct {
	ActorResponseMixIn
	Site *powerwall.SiteInfo
}

type GetSiteStateRequest struct {
	ActorRequestMixIn
}

type GetSiteStateResponse struct {
	ActorResponseMixIn
	State *SiteState
}

type SetOperationModeRequest struct {
	ActorRequestMixIn
	Mode OperationMode
}

type SetOperationModeResponse struct {
	ActorResponseMixIn
	Confirmation string
}

type SetBackupReserveRequest struct {
	ActorRequestMixIn
	Percent int
}

type SetBackupReserveResponse struct {
	ActorResponseMixIn
	Confirmation string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
