/*
Package rabbitmq is the RabbitMQ driver for the queue destination slot. It
publishes JSON envelopes to a durable queue through the default exchange and
reads them back with basic.get for the worker.
*/
package rabbitmq
