package editor

import (
	"fmt"

	"github.com/hazyhaar/diagrammer/render"
)

// Sample is a ready-made diagram offered in the sample picker.
type Sample struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Engine string `json:"engine"`
	Source string `json:"source"`
}

// DefaultSample is loaded when there is neither a share link nor an autosave.
const DefaultSample = "flowchart"

var samples = []Sample{
	{Name: "flowchart", Title: "Flowchart", Engine: render.EngineMermaid, Source: `graph TD
    A[Start] --> B{Is it?}
    B -- Yes --> C[OK]
    C --> D[Rethink]
    D --> B
    B -- No --> E[End]`},
	{Name: "sequence", Title: "Sequence diagram", Engine: render.EngineMermaid, Source: `sequenceDiagram
    participant Alice
    participant Bob
    Alice->>John: Hello John, how are you?
    loop Healthcheck
        John->>John: Fight against hypochondria
    end
    Note right of John: Rational thoughts <br/>prevail...
    John-->>Alice: Great!
    John->>Bob: How about you?
    Bob-->>John: Jolly good!`},
	{Name: "class", Title: "Class diagram", Engine: render.EngineMermaid, Source: `classDiagram
    Class01 <|-- AveryLongClass : Cool
    Class03 *-- Class04
    Class05 o-- Class06
    Class07 .. Class08
    Class09 --> C2 : Where am i?
    Class09 --* C3
    Class09 --|> Class07
    Class07 : equals()
    Class07 : Object[] elementData
    Class01 : size()
    Class01 : int chimp
    Class01 : int gorilla
    Class08 <--> C2: Cool label`},
	{Name: "state", Title: "State diagram", Engine: render.EngineMermaid, Source: `stateDiagram-v2
    [*] --> Still
    Still --> [*]
    Still --> Moving
    Moving --> Still
    Moving --> Crash
    Crash --> [*]`},
	{Name: "er", Title: "Entity relationship", Engine: render.EngineMermaid, Source: `erDiagram
    CUSTOMER ||--o{ ORDER : places
    ORDER ||--|{ LINE-ITEM : contains
    CUSTOMER }|..|{ DELIVERY-ADDRESS : uses`},
	{Name: "journey", Title: "User journey", Engine: render.EngineMermaid, Source: `journey
    title My working day
    section Go to work
      Make tea: 5: Me
      Go upstairs: 3: Me
      Do work: 1: Me, Cat
    section Go home
      Go downstairs: 5: Me
      Sit down: 5: Me`},
	{Name: "gantt", Title: "Gantt chart", Engine: render.EngineMermaid, Source: `gantt
    title A Gantt Diagram
    dateFormat  YYYY-MM-DD
    section Section
    todayMarker off
    A task           :a1, 2025-11-10, 30d
    Another task     :after a1  , 20d
    section Another
    Task in sec      :2025-11-20  , 12d
    another task      : 24d`},
	{Name: "pie", Title: "Pie chart", Engine: render.EngineMermaid, Source: `pie title Pets adopted by volunteers
    "Dogs" : 386
    "Cats" : 85
    "Rats" : 15`},
	{Name: "quadrant", Title: "Quadrant chart", Engine: render.EngineMermaid, Source: `quadrantChart
    title Reach and engagement of campaigns
    x-axis Low Reach --> High Reach
    y-axis Low Engagement --> High Engagement
    quadrant-1 We should expand
    quadrant-2 Need to promote
    quadrant-3 Re-evaluate
    quadrant-4 May be improved
    Campaign A: [0.3, 0.6]
    Campaign B: [0.45, 0.23]
    Campaign C: [0.57, 0.69]
    Campaign D: [0.78, 0.34]
    Campaign E: [0.40, 0.34]
    Campaign F: [0.35, 0.78]`},
	{Name: "requirement", Title: "Requirement diagram", Engine: render.EngineMermaid, Source: `requirementDiagram

    requirement test_req {
    id: 1
    text: the test text.
    risk: high
    verifymethod: test
    }

    element test_entity {
    type: simulation
    }

    test_entity - satisfies -> test_req`},
	{Name: "git", Title: "Git graph", Engine: render.EngineMermaid, Source: `gitGraph
   commit
   commit
   branch develop
   checkout develop
   commit
   commit
   checkout main
   merge develop
   commit
   commit`},
	{Name: "c4", Title: "C4 context", Engine: render.EngineMermaid, Source: `C4Context
  title System Context diagram for Internet Banking System
  Enterprise_Boundary(b0, "BankBoundary0") {
    Person(customerA, "Banking Customer A", "A customer of the bank, with personal bank accounts.")
    System(SystemAA, "Internet Banking System", "Allows customers to view information about their bank accounts, and make payments.")

    System_Ext(SystemE, "Mainframe Banking System", "Stores all of the core banking information about customers, accounts, transactions, etc.")

    System_Ext(SystemC, "E-mail System", "The internal Microsoft Exchange e-mail system.")
    System_Ext(SystemD, "Mainframe Banking System", "Stores all of the core banking information about customers, accounts, transactions, etc.")

    Rel(customerA, SystemAA, "Uses")
    Rel(SystemAA, SystemE, "Uses")
    Rel(SystemAA, SystemC, "Sends e-mails", "SMTP")
    Rel(SystemAA, SystemD, "Uses")
  }`},
	{Name: "mindmap", Title: "Mindmap", Engine: render.EngineMermaid, Source: `mindmap
  root((mindmap))
    Origins
      Long history
      ::icon(fa fa-book)
      Popularisation
        British popular psychology author Tony Buzan
    Research
      On effectiveness<br/>and features
      On Automatic creation
        Uses
            Creative techniques
            Strategic planning
            Argument mapping
    Tools
      Pen and paper
      Mermaid`},
	{Name: "timeline", Title: "Timeline", Engine: render.EngineMermaid, Source: `timeline
    title History of Social Media Platform
    2002 : LinkedIn
    2004 : Facebook
         : Google
    2005 : Youtube
    2006 : Twitter`},
	{Name: "sankey", Title: "Sankey", Engine: render.EngineMermaid, Source: `sankey-beta

Agricultural 'waste',Bio-conversion,124.729
Bio-conversion,Liquid,0.597
Bio-conversion,Losses,26.862
Bio-conversion,Solid,280.322
Bio-conversion,Gas,81.144`},
	{Name: "xy", Title: "XY chart", Engine: render.EngineMermaid, Source: `xychart-beta
    title "Sales Revenue"
    x-axis [jan, feb, mar, apr, may, jun, jul, aug, sep, oct, nov, dec]
    y-axis "Revenue (in $)" 4000 --> 11000
    bar [5000, 6000, 7500, 8200, 9500, 10500, 11000, 10200, 9200, 8500, 7000, 6000]
    line [5000, 6000, 7500, 8200, 9500, 10500, 11000, 10200, 9200, 8500, 7000, 6000]`},
	{Name: "block", Title: "Block diagram", Engine: render.EngineMermaid, Source: `block-beta
columns 1
  db("DB")
  blockArrowId6<["&nbsp;&nbsp;&nbsp;"]>(down)
  block:ID
    A
    B["A wide one in the middle"]
    C
  end
  space
  D
  ID --> D
  C --> D
  style B fill:#969,stroke:#333,stroke-width:4px`},
	{Name: "packet", Title: "Packet", Engine: render.EngineMermaid, Source: `packet-beta
0-15: "Source Port"
16-31: "Destination Port"
32-63: "Sequence Number"
64-95: "Acknowledgment Number"
96-99: "Data Offset"
100-105: "Reserved"
106: "URG"
107: "ACK"
108: "PSH"
109: "RST"
110: "SYN"
111: "FIN"
112-127: "Window"
128-143: "Checksum"
144-159: "Urgent Pointer"
160-191: "(Options and Padding)"
192-255: "Data"`},
	{Name: "kanban", Title: "Kanban", Engine: render.EngineMermaid, Source: `---
config:
  kanban:
    ticketBaseUrl: 'https://mermaidchart.atlassian.net/browse/#TICKET#'
---
kanban
  Todo
    [Create Documentation]
    docs[Create Blog about the new diagram]
  [In progress]
    id6[Create renderer so that it works in all cases.]
  Ready for test
    id4[Create parsing tests]@{ ticket: MC-2038, assigned: 'K.Sveidqvist', priority: 'High' }
  Done
    id5[define getData]`},
	{Name: "architecture", Title: "Architecture", Engine: render.EngineMermaid, Source: `architecture-beta
    group api(cloud)[API]

    service db(database)[Database] in api
    service disk1(disk)[Storage] in api
    service disk2(disk)[Storage] in api
    service server(server)[Server] in api

    db:L -- R:server
    disk1:T -- B:server
    disk2:T -- B:db`},
	{Name: "radar", Title: "Radar", Engine: render.EngineMermaid, Source: `---
title: "Grades"
---
radar-beta
  axis m["Math"], s["Science"], e["English"]
  axis h["History"], g["Geography"], a["Art"]
  curve a["Alice"]{85, 90, 80, 70, 75, 90}
  curve b["Bob"]{70, 75, 85, 80, 90, 85}

  max 100
  min 0`},
	{Name: "treemap", Title: "Treemap", Engine: render.EngineMermaid, Source: `treemap-beta
"Category A"
    "Item A1": 10
    "Item A2": 20
"Category B"
    "Item B1": 15
    "Item B2": 25`},
	{Name: "d2-basic", Title: "D2 basic", Engine: render.EngineD2, Source: `server: Web Server
db: Database {shape: cylinder}
cache: Cache {shape: queue}
server -> db: queries
server -> cache: reads
cache -> db: misses`},
	{Name: "d2-containers", Title: "D2 containers", Engine: render.EngineD2, Source: `cloud: Cloud {
  lb: Load Balancer
  api: API {
    a: replica a
    b: replica b
  }
  lb -> api.a
  lb -> api.b
}
user: User {shape: person}
user -> cloud.lb: HTTPS`},
	{Name: "d2-sequence", Title: "D2 sequence", Engine: render.EngineD2, Source: `shape: sequence_diagram
alice: Alice
bob: Bob
alice -> bob: Hello Bob
bob -> alice: Hi Alice
alice -> bob: How is the export going?`},
}

// Samples returns the sample library in picker order.
func Samples() []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}

// LookupSample returns the named sample.
func LookupSample(name string) (Sample, error) {
	for _, s := range samples {
		if s.Name == name {
			return s, nil
		}
	}
	return Sample{}, fmt.Errorf("%w: %q", ErrUnknownSample, name)
}
