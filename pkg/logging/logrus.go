package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logrus builds the per-component loggers of a trap module process
type Logrus struct {
	level  string
	output io.Writer
	json   bool
	fields logrus.Fields
}

// NewLogrus creates a new logrus factory
func NewLogrus(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, output: output, fields: logrus.Fields{}}
}

// WithJSON switches the factory to the JSON formatter, used when logs are shipped off the node
func (l *Logrus) WithJSON() *Logrus {
	l.json = true
	return l
}

// WithNode tags every logger produced by the factory with the mesh node id
func (l *Logrus) WithNode(nodeID uint32) *Logrus {
	l.fields["Node"] = nodeID
	return l
}

// Get returns a logrus instance based on the specific context
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(l.level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if l.json {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	log.SetOutput(l.output)
	fields := logrus.Fields{"Context": context}
	for key, value := range l.fields {
		fields[key] = value
	}
	return log.WithFields(fields)
}
