package common

const (
	ComponentManager     = "manager"
	ComponentWatcher     = "watcher"
	ComponentProcessor   = "processor"
	ComponentChainClient = "chain-client"
	ComponentStore       = "store"
	ComponentAPI         = "api"
	ComponentMaintenance = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentManager:     {},
	ComponentWatcher:     {},
	ComponentProcessor:   {},
	ComponentChainClient: {},
	ComponentStore:       {},
	ComponentAPI:         {},
	ComponentMaintenance: {},
}
