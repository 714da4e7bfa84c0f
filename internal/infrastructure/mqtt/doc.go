// Package mqtt connects the Chroma daemon to an MQTT broker.
//
// The client has no general publish or subscribe surface. It carries three
// topic families, each with a fixed delivery policy:
//
//	chroma/state/<flag>              in   QoS 1, retained by publishers   -> statebus
//	chroma/gamesense/<game>/register out  configured QoS, retained        <- gamesense transport
//	chroma/gamesense/<game>/event    out  QoS 0                           <- gamesense transport
//	chroma/gamesense/status          in   QoS 1, retained relay presence  -> gamesense transport
//
// The daemon's own presence is retained on chroma/system/status, with a will
// that reports it offline when the connection drops.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeFlags(func(u mqtt.FlagUpdate) error {
//	    return bus.Apply(u)
//	})
package mqtt
