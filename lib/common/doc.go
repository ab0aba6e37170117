/*
Package common holds the configuration and logging setup shared by the engine,
the adapter and the command line.

Every package logs through the dragonboat logger facade
(logger.GetLogger("<pkg>")). InitLoggers installs a factory that writes
through zap, so the whole process shares one sink and one format.
*/
package common
