package mesos

import "strings"

// Call is a master operator API call type.
type Call string

// Operator API call types.
const (
	CallGetHealth                 Call = "GET_HEALTH"
	CallGetFlags                  Call = "GET_FLAGS"
	CallGetVersion                Call = "GET_VERSION"
	CallGetMetrics                Call = "GET_METRICS"
	CallGetLoggingLevel           Call = "GET_LOGGING_LEVEL"
	CallSetLoggingLevel           Call = "SET_LOGGING_LEVEL"
	CallListFiles                 Call = "LIST_FILES"
	CallReadFile                  Call = "READ_FILE"
	CallGetState                  Call = "GET_STATE"
	CallGetAgents                 Call = "GET_AGENTS"
	CallGetFrameworks             Call = "GET_FRAMEWORKS"
	CallGetExecutors              Call = "GET_EXECUTORS"
	CallGetTasks                  Call = "GET_TASKS"
	CallGetRoles                  Call = "GET_ROLES"
	CallGetWeights                Call = "GET_WEIGHTS"
	CallUpdateWeights             Call = "UPDATE_WEIGHTS"
	CallGetMaster                 Call = "GET_MASTER"
	CallReserveResources          Call = "RESERVE_RESOURCES"
	CallUnreserveResources        Call = "UNRESERVE_RESOURCES"
	CallCreateVolumes             Call = "CREATE_VOLUMES"
	CallDestroyVolumes            Call = "DESTROY_VOLUMES"
	CallGrowVolumes               Call = "GROW_VOLUMES"
	CallShrinkVolumes             Call = "SHRINK_VOLUMES"
	CallGetMaintenanceStatus      Call = "GET_MAINTENANCE_STATUS"
	CallGetMaintenanceSchedule    Call = "GET_MAINTENANCE_SCHEDULE"
	CallUpdateMaintenanceSchedule Call = "UPDATE_MAINTENANCE_SCHEDULE"
	CallStartMaintenance          Call = "START_MAINTENANCE"
	CallStopMaintenance           Call = "STOP_MAINTENANCE"
	CallGetQuota                  Call = "GET_QUOTA"
	CallSetQuota                  Call = "SET_QUOTA"
	CallRemoveQuota               Call = "REMOVE_QUOTA"
	CallTeardown                  Call = "TEARDOWN"
	CallMarkAgentGone             Call = "MARK_AGENT_GONE"
	CallSubscribe                 Call = "SUBSCRIBE"
)

// ResponseKey is the top-level key the master uses for this call's result.
func (c Call) ResponseKey() string {
	return strings.ToLower(string(c))
}

// callBody is the JSON body of an operator call.
type callBody struct {
	Type     Call          `json:"type"`
	Teardown *teardownBody `json:"teardown,omitempty"`
}

type teardownBody struct {
	FrameworkID idValue `json:"framework_id"`
}

type idValue struct {
	Value string `json:"value"`
}
