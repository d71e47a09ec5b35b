/*
Package rabbitmq carries frames over a RabbitMQ topic exchange.
Every endpoint declares one exclusive, auto-deleted queue and binds it once per
listened subject, using the subject as routing key. A closed connection is reported
as a transport error; the endpoint does not reconnect on its own.
*/
package rabbitmq
