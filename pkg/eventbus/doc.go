// Package eventbus publishes operational notices over RabbitMQ.
//
// Without AMQP_URL the process uses NoopPublisher; tests use MemoryPublisher
// to assert on what was emitted.
package eventbus
