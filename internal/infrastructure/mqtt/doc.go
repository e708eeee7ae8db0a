// Package mqtt provides the broker connection used by the IR fan bridge.
//
// The bridge uses MQTT in three roles: it receives fan commands and
// power-sensor readings, it publishes fan state and acknowledgements, and
// the MQTT controller transmits IR/RF frames by publishing to the blaster's
// topic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.FanCommand("bedroom"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// Handlers are wrapped with panic recovery and subscriptions survive
// reconnects. TLS should be enabled for anything beyond a bench setup.
package mqtt
