package catalog

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/karrick/godirwalk"
	"github.com/sirupsen/logrus"
)

// TopicCatalog is the local catalog: one sub folder per topic, bitmaps inside.
type TopicCatalog struct {
	root    string
	topics  map[string][]Entry
	history map[string]mapset.Set[string]
	rnd     *rand.Rand
}

func NewTopicCatalog(root string, rnd *rand.Rand) (*TopicCatalog, error) {
	c := &TopicCatalog{
		root:    root,
		history: make(map[string]mapset.Set[string]),
		rnd:     rnd,
	}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

// ScanTopics walks root and returns the entries of every visible topic folder.
// Files directly under root and folders nested inside a topic are ignored.
func ScanTopics(root string) (map[string][]Entry, error) {
	topics := make(map[string][]Entry)

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == root {
				return nil
			}
			if strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			hier := strings.Split(rel, string(filepath.Separator))

			switch len(hier) {
			case 1:
				if de.IsDir() {
					if _, ok := topics[hier[0]]; !ok {
						topics[hier[0]] = nil
					}
				}
			case 2:
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				if IsSupported(hier[1]) {
					topics[hier[0]] = append(topics[hier[0]], Entry{Topic: hier[0], Path: path})
				}
			default:
				return godirwalk.SkipThis
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to scan topics in %s: %w", root, err)
	}

	for topic := range topics {
		sort.Slice(topics[topic], func(i, j int) bool {
			return topics[topic][i].Path < topics[topic][j].Path
		})
	}
	return topics, nil
}

// Rescan rebuilds the topic map from storage. Histories of vanished entries are dropped.
func (c *TopicCatalog) Rescan() error {
	topics, err := ScanTopics(c.root)
	if err != nil {
		return err
	}
	c.topics = topics

	for topic, history := range c.history {
		names := c.names(topic)
		if names.Cardinality() == 0 {
			delete(c.history, topic)
			continue
		}
		c.history[topic] = history.Intersect(names)
	}

	for topic, entries := range topics {
		logrus.Infof("Topic %s: %d images", topic, len(entries))
	}
	return nil
}

func (c *TopicCatalog) Topics() []string {
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (c *TopicCatalog) Entries(topic string) []Entry {
	return c.topics[topic]
}

func (c *TopicCatalog) names(topic string) mapset.Set[string] {
	names := mapset.NewSet[string]()
	for _, entry := range c.topics[topic] {
		names.Add(entry.Name())
	}
	return names
}

// PickNext chooses a non-empty topic uniformly at random, then an entry of that topic
// that was not shown since the topic's history was last reset.
func (c *TopicCatalog) PickNext() (Entry, error) {
	var candidates []string
	for _, topic := range c.Topics() {
		if len(c.topics[topic]) > 0 {
			candidates = append(candidates, topic)
		}
	}
	if len(candidates) == 0 {
		return Entry{}, ErrNoImagesAvailable
	}
	topic := candidates[c.rnd.Intn(len(candidates))]

	history, ok := c.history[topic]
	if !ok {
		history = mapset.NewSet[string]()
	}
	name, history, err := PickNext(c.names(topic), history, c.rnd)
	if err != nil {
		return Entry{}, err
	}
	c.history[topic] = history

	for _, entry := range c.topics[topic] {
		if entry.Name() == name {
			return entry, nil
		}
	}
	return Entry{}, ErrNoImagesAvailable
}
