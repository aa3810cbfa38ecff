package main

import (
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"

	"telearm"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: arm.API, Model: telearm.TelearmModel},
		resource.APIModel{API: discovery.API, Model: telearm.TelearmDiscoveryModel},
	)
}
